package pipeline

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const bannerWidth = 80

// Report はコンソール向けの進捗出力です。ログ (slog) とは別に利用者へ見せる内容を書きます。
// 複数のワーカーから呼ばれるため書き込みは直列化されます。
type Report struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

func NewReport(w io.Writer) *Report {
	if w == nil {
		w = io.Discard
	}
	return &Report{w: w, now: time.Now}
}

// Section は "=" で囲んだ見出しを書きます。
func (r *Report) Section(title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule := strings.Repeat("=", bannerWidth)
	fmt.Fprintf(r.w, "\n%s\n%s\n%s\n\n", rule, title, rule)
}

// Write は io.Writer として他の出力 (検証コマンドの診断出力など) を受け付けます。
func (r *Report) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Write(p)
}

// Printf は1行書きます。
func (r *Report) Printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format+"\n", args...)
}

// Error は時刻付きの見出し、対象ケースの文字列、エラーチェーンを書きます。
func (r *Report) Error(subject string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule := strings.Repeat("=", bannerWidth)
	fmt.Fprintf(r.w, "\n%s\n%s ERROR: %s\n%s\n", rule, r.now().Format(time.DateTime), subject, rule)
	writeChain(r.w, err, "")
	fmt.Fprintln(r.w)
}

// writeChain はエラーを包んでいる順に字下げして書きます。
func writeChain(w io.Writer, err error, indent string) {
	for err != nil {
		fmt.Fprintf(w, "%s%T: %v\n", indent, err, err)
		if multi, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range multi.Unwrap() {
				writeChain(w, e, indent+"    ")
			}
			return
		}
		err = errors.Unwrap(err)
		indent += "  "
	}
}
