package testspec

import "fmt"

// DiscoveryPrefix はファイル名指定がない場合に実行対象とするテストファイルの接頭辞です。
const DiscoveryPrefix = "test_"

// ErrNotFound はテスト仕様ファイルが見つからないことを示します。
type ErrNotFound struct {
	Name     string
	TestsDir string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("テストが見つかりません: %s (testsdir: %s)", e.Name, e.TestsDir)
}

// ErrLoad はテスト仕様ファイルの読み込みまたは解析に失敗したことを示します。
type ErrLoad struct {
	Path       string
	WrappedErr error
}

func (e *ErrLoad) Error() string {
	return fmt.Sprintf("テスト仕様の読み込みに失敗しました (%s): %v", e.Path, e.WrappedErr)
}

func (e *ErrLoad) Unwrap() error {
	return e.WrappedErr
}
