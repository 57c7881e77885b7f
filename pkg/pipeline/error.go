package pipeline

import (
	"fmt"
	"strings"
)

// ----------------------------------------------------------------------
// ケース単位のエラー
// ----------------------------------------------------------------------

// ErrSynthesis は1件の発話の音声合成に失敗したことを示します。
type ErrSynthesis struct {
	Resolved   string
	WrappedErr error
}

func (e *ErrSynthesis) Error() string {
	return fmt.Sprintf("音声合成に失敗しました (%q): %v", e.Resolved, e.WrappedErr)
}

func (e *ErrSynthesis) Unwrap() error {
	return e.WrappedErr
}

// ErrRecognition は1件の発話の音声認識に失敗したことを示します。
// 認証の失敗 (*avs.ErrAuthentication) もここに包まれます。
type ErrRecognition struct {
	Resolved   string
	WrappedErr error
}

func (e *ErrRecognition) Error() string {
	return fmt.Sprintf("音声認識に失敗しました (%q): %v", e.Resolved, e.WrappedErr)
}

func (e *ErrRecognition) Unwrap() error {
	return e.WrappedErr
}

// ----------------------------------------------------------------------
// フェーズ単位のエラー
// ----------------------------------------------------------------------

// ErrStageBatch はフェーズ内で発生した複数のエラーをまとめたものです。
// このエラーが返るとテスト仕様の残りのフェーズは実行されません。
type ErrStageBatch struct {
	Stage       string
	TotalErrors int
	Details     []string
	Errs        []error
}

func newStageBatch(stage string, errs []error) *ErrStageBatch {
	details := make([]string, len(errs))
	for i, err := range errs {
		details[i] = err.Error()
	}
	return &ErrStageBatch{Stage: stage, TotalErrors: len(errs), Details: details, Errs: errs}
}

func (e *ErrStageBatch) Error() string {
	return fmt.Sprintf("%s フェーズで %d 件のエラーが発生しました:\n- %s",
		e.Stage, e.TotalErrors, strings.Join(e.Details, "\n- "))
}

func (e *ErrStageBatch) Unwrap() []error {
	return e.Errs
}
