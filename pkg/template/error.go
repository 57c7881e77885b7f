package template

import "fmt"

// ErrUnknownSlot はテンプレートのスロットに対応する型定義が存在しないことを示します。
type ErrUnknownSlot struct {
	Slot     string
	Template string
}

func (e *ErrUnknownSlot) Error() string {
	return fmt.Sprintf("未定義のスロット %s がテンプレートに含まれています: %q", e.Slot, e.Template)
}
