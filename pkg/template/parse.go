package template

import (
	"strings"
)

// ----------------------------------------------------------------------
// データモデル (テンプレート)
// ----------------------------------------------------------------------

// Run はテンプレートを構成する一片です。Slot が true の場合 Text はスロットトークン ("{name}") です。
type Run struct {
	Text string
	Slot bool
}

// Template は一度だけ解析された発話テンプレートです。
// 展開時はこのランリストを全ての組み合わせで再利用します。
type Template struct {
	Source string
	Runs   []Run
}

// Slots はテンプレート内のスロットトークンを初出順に重複なしで返します。
// 同じトークンが複数回現れる場合、全ての位置に同じ値が束縛されます。
func (t *Template) Slots() []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range t.Runs {
		if r.Slot && !seen[r.Text] {
			seen[r.Text] = true
			out = append(out, r.Text)
		}
	}
	return out
}

// Substitute はランリストを左から順にたどり、スロットを bindings の値で置換します。
func (t *Template) Substitute(bindings map[string]string) (string, error) {
	var b strings.Builder
	for _, r := range t.Runs {
		if !r.Slot {
			b.WriteString(r.Text)
			continue
		}
		v, ok := bindings[r.Text]
		if !ok {
			return "", &ErrUnknownSlot{Slot: r.Text, Template: t.Source}
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

// ----------------------------------------------------------------------
// 解析
// ----------------------------------------------------------------------

// Parse は "{identifier}" 形式のトークンを走査し、リテラルと変数のランリストを作ります。
// '{' から最初の '}' までを1トークンとし、閉じ括弧のない '{' はリテラルとして扱います。
func Parse(s string) *Template {
	t := &Template{Source: s}

	rest := s
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			break
		}
		end += open

		if open > 0 {
			t.appendLiteral(rest[:open])
		}
		t.Runs = append(t.Runs, Run{Text: rest[open : end+1], Slot: true})
		rest = rest[end+1:]
	}
	if rest != "" {
		t.appendLiteral(rest)
	}

	return t
}

func (t *Template) appendLiteral(s string) {
	if n := len(t.Runs); n > 0 && !t.Runs[n-1].Slot {
		t.Runs[n-1].Text += s
		return
	}
	t.Runs = append(t.Runs, Run{Text: s})
}

// SlotName はトークンから括弧を除いたスロット名を返します ("{num}" → "num")。
func SlotName(token string) string {
	return strings.TrimSuffix(strings.TrimPrefix(token, "{"), "}")
}

// SlotToken はスロット名をトークン表記にします ("num" → "{num}")。
func SlotToken(name string) string {
	return "{" + name + "}"
}
