package synth

import (
	"context"
	"log/slog"

	"github.com/shouni/go-skilltest/pkg/audio"
	"github.com/shouni/go-skilltest/pkg/config"
)

// ----------------------------------------------------------------------
// インターフェース
// ----------------------------------------------------------------------

// Synthesizer はテキストを音声に変換するバックエンドです。
// 返される PCM のサンプリングレートはバックエンドに依存し、書き出し時に 16kHz へ揃えられます。
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) (*audio.PCM, error)
}

// バックエンド名 (設定キー synth の値)
const (
	NameEspeak   = "espeak"
	NameSay      = "say"
	NameVoicevox = "voicevox"
	NameAzure    = "azure"
)

// ----------------------------------------------------------------------
// Factory 関数
// ----------------------------------------------------------------------

// New は設定の synth キーに応じたバックエンドを組み立てて返します。
func New(ctx context.Context, cfg config.Config) (Synthesizer, error) {
	var (
		s   Synthesizer
		err error
	)
	switch cfg.Synth {
	case NameEspeak:
		s = NewEspeak()
	case NameSay:
		s = NewSay()
	case NameVoicevox:
		s, err = NewVoicevox(ctx, cfg)
	case NameAzure:
		s, err = NewAzure(cfg)
	default:
		return nil, &ErrUnknownSynth{Name: cfg.Synth}
	}
	if err != nil {
		return nil, err
	}

	slog.Info("音声合成バックエンドを初期化しました", "synth", s.Name())
	return s, nil
}
