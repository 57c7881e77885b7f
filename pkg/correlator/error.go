package correlator

import "fmt"

// ErrVerifier は検証コマンドが異常終了したことを示します。
// テスト結果のシグナルであり、ハーネスの実行は継続されます。
type ErrVerifier struct {
	Command    string
	Resolved   string
	WrappedErr error
}

func (e *ErrVerifier) Error() string {
	return fmt.Sprintf("検証コマンドが失敗しました (発話: %q, コマンド: %s): %v", e.Resolved, e.Command, e.WrappedErr)
}

func (e *ErrVerifier) Unwrap() error {
	return e.WrappedErr
}
