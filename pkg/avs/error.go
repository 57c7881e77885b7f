package avs

import (
	"fmt"
	"net/http"
)

// ErrAuthentication はログインフローまたはトークン取得に失敗したことを示します。
type ErrAuthentication struct {
	Reason     string
	WrappedErr error
}

func (e *ErrAuthentication) Error() string {
	if e.WrappedErr != nil {
		return fmt.Sprintf("認証に失敗しました: %s: %v", e.Reason, e.WrappedErr)
	}
	return fmt.Sprintf("認証に失敗しました: %s", e.Reason)
}

func (e *ErrAuthentication) Unwrap() error {
	return e.WrappedErr
}

// ErrRecognition は認識リクエストが音声結果を返さなかったことを示します。
// 診断用に最後の応答のステータス、ヘッダー、ボディを保持します。
type ErrRecognition struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	WrappedErr error
}

func (e *ErrRecognition) Error() string {
	if e.WrappedErr != nil {
		return fmt.Sprintf("認識リクエストに失敗しました: %v", e.WrappedErr)
	}
	body := string(e.Body)
	if len(body) > 100 {
		body = body[:100] + "..."
	}
	return fmt.Sprintf("認識応答に音声パートがありません。ステータスコード %d: %s", e.StatusCode, body)
}

func (e *ErrRecognition) Unwrap() error {
	return e.WrappedErr
}
