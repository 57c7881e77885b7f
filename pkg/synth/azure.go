package synth

import (
	"context"
	"fmt"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/common"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"

	"github.com/shouni/go-skilltest/pkg/audio"
	"github.com/shouni/go-skilltest/pkg/config"
)

// Azure は Azure Speech の音声合成を使うバックエンドです。
type Azure struct {
	key    string
	region string
	voice  string
}

// NewAzure は資格情報を検証してバックエンドを返します。接続は合成ごとに行います。
func NewAzure(cfg config.Config) (*Azure, error) {
	if cfg.AzureKey == "" || cfg.AzureRegion == "" {
		return nil, fmt.Errorf("azure バックエンドには azurekey と azureregion が必要です")
	}
	return &Azure{key: cfg.AzureKey, region: cfg.AzureRegion, voice: cfg.AzureVoice}, nil
}

func (a *Azure) Name() string { return NameAzure }

func (a *Azure) Synthesize(ctx context.Context, text string) (*audio.PCM, error) {
	wav, err := a.speak(ctx, text)
	if err != nil {
		return nil, &ErrBackend{Backend: NameAzure, WrappedErr: err}
	}
	pcm, err := audio.Decode(wav)
	if err != nil {
		return nil, &ErrBackend{Backend: NameAzure, WrappedErr: err}
	}
	return pcm, nil
}

func (a *Azure) speak(ctx context.Context, text string) ([]byte, error) {
	conf, err := speech.NewSpeechConfigFromSubscription(a.key, a.region)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure speech config: %w", err)
	}
	defer conf.Close()

	if a.voice != "" {
		if err := conf.SetSpeechSynthesisVoiceName(a.voice); err != nil {
			return nil, fmt.Errorf("failed to set synthesis voice: %w", err)
		}
	}
	if err := conf.SetSpeechSynthesisOutputFormat(common.Riff16Khz16BitMonoPcm); err != nil {
		return nil, fmt.Errorf("failed to set synthesis output format: %w", err)
	}

	// 音声は結果から取り出すため AudioConfig は nil
	synthesizer, err := speech.NewSpeechSynthesizerFromConfig(conf, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech synthesizer: %w", err)
	}
	defer synthesizer.Close()

	var outcome speech.SpeechSynthesisOutcome
	select {
	case outcome = <-synthesizer.SpeakTextAsync(text):
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled while waiting for synthesis result: %w", ctx.Err())
	}
	defer outcome.Close()

	if outcome.Error != nil {
		return nil, fmt.Errorf("synthesis outcome error: %w", outcome.Error)
	}
	if outcome.Result.Reason != common.SynthesizingAudioCompleted {
		cancellation, _ := speech.NewCancellationDetailsFromSpeechSynthesisResult(outcome.Result)
		details := ""
		if cancellation != nil {
			details = cancellation.ErrorDetails
		}
		return nil, fmt.Errorf("synthesis failed: reason=%s, details=%s", outcome.Result.Reason.String(), details)
	}

	return outcome.Result.AudioData, nil
}
