package voicevox

import (
	"fmt"
)

// ----------------------------------------------------------------------
// API 通信・応答エラー
// ----------------------------------------------------------------------

// ErrAPINetwork はAPI呼び出しにおける通信エラーやリトライ後の最終失敗を示すカスタムエラー型です。
type ErrAPINetwork struct {
	Endpoint   string
	WrappedErr error
}

func (e *ErrAPINetwork) Error() string {
	return fmt.Sprintf("API通信エラー (%s): %v", e.Endpoint, e.WrappedErr)
}

func (e *ErrAPINetwork) Unwrap() error {
	return e.WrappedErr
}

// ErrInvalidJSON はAPI応答が期待されるJSON形式でなかったことを示します。
type ErrInvalidJSON struct {
	Details    string
	WrappedErr error
}

func (e *ErrInvalidJSON) Error() string {
	return fmt.Sprintf("不正なJSONデータ: %s (詳細: %v)", e.Details, e.WrappedErr)
}

func (e *ErrInvalidJSON) Unwrap() error {
	return e.WrappedErr
}

// ----------------------------------------------------------------------
// 話者データエラー
// ----------------------------------------------------------------------

// ErrStyleNotFound は話者またはスタイル (およびデフォルトスタイル) が見つからないことを示します。
type ErrStyleNotFound struct {
	Speaker string
	Style   string
}

func (e *ErrStyleNotFound) Error() string {
	return fmt.Sprintf("話者 '%s' のスタイル '%s' (およびデフォルトスタイル) に対応するStyle IDが見つかりません", e.Speaker, e.Style)
}
