package synth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shouni/go-skilltest/pkg/audio"
	"github.com/shouni/go-skilltest/pkg/config"
	"github.com/shouni/go-skilltest/pkg/voicevox"
)

// Voicevox は VOICEVOX エンジンを使うバックエンドです。
type Voicevox struct {
	client  *voicevox.Client
	styleID int
}

// NewVoicevox はエンジンに接続して話者スタイルをロードし、設定の話者に対応する Style ID を決定します。
func NewVoicevox(ctx context.Context, cfg config.Config) (*Voicevox, error) {
	client := voicevox.NewClient(cfg.VoicevoxURL, voicevox.DefaultTimeout)

	slog.Info("VOICEVOX話者スタイルデータをロード中...", "url", cfg.VoicevoxURL)
	styles, err := voicevox.LoadStyles(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("VOICEVOXエンジンへの接続または話者データのロードに失敗しました: %w", err)
	}

	styleID, err := styles.StyleID(ctx, cfg.VoicevoxSpeaker, cfg.VoicevoxStyle)
	if err != nil {
		return nil, err
	}

	slog.Info("VOICEVOX Executorの初期化が完了しました。", "speaker", cfg.VoicevoxSpeaker, "style_id", styleID)
	return &Voicevox{client: client, styleID: styleID}, nil
}

func (v *Voicevox) Name() string { return NameVoicevox }

func (v *Voicevox) Synthesize(ctx context.Context, text string) (*audio.PCM, error) {
	wav, err := v.client.Speak(ctx, text, v.styleID)
	if err != nil {
		return nil, &ErrBackend{Backend: NameVoicevox, WrappedErr: err}
	}
	pcm, err := audio.Decode(wav)
	if err != nil {
		return nil, &ErrBackend{Backend: NameVoicevox, WrappedErr: err}
	}
	return pcm, nil
}
