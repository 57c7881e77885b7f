package source

import "fmt"

// ErrResolution は値ソースの解決 (コマンド、ファイル、サンプリング) に失敗したことを示します。
type ErrResolution struct {
	Source     Descriptor
	WrappedErr error
}

func (e *ErrResolution) Error() string {
	return fmt.Sprintf("値ソースの解決に失敗しました (%s): %v", e.Source, e.WrappedErr)
}

func (e *ErrResolution) Unwrap() error {
	return e.WrappedErr
}

// ErrInsufficientSamples は random で要求された件数が母集団を超えていることを示します。
type ErrInsufficientSamples struct {
	Requested int
	Available int
}

func (e *ErrInsufficientSamples) Error() string {
	return fmt.Sprintf("サンプル数が不足しています (要求 %d 件 / 候補 %d 件)", e.Requested, e.Available)
}
