package synth

import "fmt"

// ErrUnknownSynth は設定された合成バックエンド名が未対応であることを示します。
type ErrUnknownSynth struct {
	Name string
}

func (e *ErrUnknownSynth) Error() string {
	return fmt.Sprintf("未対応の音声合成バックエンドです: %q (espeak / say / voicevox / azure)", e.Name)
}

// ErrBackend は合成バックエンドの実行に失敗したことを示します。
type ErrBackend struct {
	Backend    string
	WrappedErr error
}

func (e *ErrBackend) Error() string {
	return fmt.Sprintf("音声合成に失敗しました (%s): %v", e.Backend, e.WrappedErr)
}

func (e *ErrBackend) Unwrap() error {
	return e.WrappedErr
}
