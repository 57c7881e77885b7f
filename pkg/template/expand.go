package template

import (
	"strings"
)

// TypeTable はスロットトークン ("{name}") から解決済みの値列への対応です。
type TypeTable map[string][]string

// Case は展開された1件のテストケースです。
type Case struct {
	Test     string
	Template string
	Resolved string
	CacheKey string

	// Bindings はスロットトークンから束縛された値への対応です。
	Bindings map[string]string
}

var cacheKeyReplacer = strings.NewReplacer(" ", "_", "'", "")

// CacheKey は発話文字列からファイル名に使うキーを作ります。
// 空白をアンダースコアに置換し、アポストロフィを除去します。
// "dont stop" と "don't stop" は同じキーになり、同じ音声ファイルを共有します。
func CacheKey(resolved string) string {
	return cacheKeyReplacer.Replace(resolved)
}

// Expand はテンプレートの全スロットについて型の値の直積を取り、ケースを生成します。
// 最初のスロットが最も遅く変化し、最後のスロットが最も速く変化します。
// スロットを持たないテンプレートはそのまま1件のケースになります。
func Expand(test string, t *Template, table TypeTable) ([]Case, error) {
	slots := t.Slots()

	lists := make([][]string, len(slots))
	for i, s := range slots {
		vals, ok := table[s]
		if !ok {
			return nil, &ErrUnknownSlot{Slot: s, Template: t.Source}
		}
		if len(vals) == 0 {
			return nil, nil
		}
		lists[i] = vals
	}

	var cases []Case
	idx := make([]int, len(slots))
	for {
		bindings := make(map[string]string, len(slots))
		for i, s := range slots {
			bindings[s] = lists[i][idx[i]]
		}

		resolved, err := t.Substitute(bindings)
		if err != nil {
			return nil, err
		}
		cases = append(cases, Case{
			Test:     test,
			Template: t.Source,
			Resolved: resolved,
			CacheKey: CacheKey(resolved),
			Bindings: bindings,
		})

		if !next(idx, lists) {
			return cases, nil
		}
	}
}

// SlotValues は束縛をスロット名 (括弧なし) から値への対応に変換します。
func (c Case) SlotValues() map[string]string {
	out := make(map[string]string, len(c.Bindings))
	for token, v := range c.Bindings {
		out[SlotName(token)] = v
	}
	return out
}

// ExpandAll は複数のテンプレート文字列を定義順に解析・展開します。
func ExpandAll(test string, templates []string, table TypeTable) ([]Case, error) {
	var out []Case
	for _, src := range templates {
		cases, err := Expand(test, Parse(src), table)
		if err != nil {
			return nil, err
		}
		out = append(out, cases...)
	}
	return out, nil
}

// next は添字列をオドメーター式に進めます。全組み合わせを回り切ったら false を返します。
func next(idx []int, lists [][]string) bool {
	for i := len(idx) - 1; i >= 0; i-- {
		idx[i]++
		if idx[i] < len(lists[i]) {
			return true
		}
		idx[i] = 0
	}
	return false
}
