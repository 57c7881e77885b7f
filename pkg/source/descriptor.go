package source

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Kind は値の取得元の種類です。
type Kind int

const (
	KindLiteral Kind = iota
	KindFile
	KindExec
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindExec:
		return "exec"
	default:
		return "text"
	}
}

// Descriptor は値ソースの定義です。
// JSON では {"text": ...} / {"file": ..., "utterances": true} / {"exec": ...} のいずれかに、
// 変換チェーン (filter / random / digits) を組み合わせて記述します。
// 単なる文字列は {"text": 文字列} の省略形として扱います。
type Descriptor struct {
	Kind  Kind
	Value string // テキスト、ファイルパス、またはコマンド

	// UtteranceOnly はファイルの各行から先頭トークン (インテント名) を除去します。
	UtteranceOnly bool

	Filter string // 前方一致の正規表現
	Sample int    // 0 はサンプリングなし
	Digits bool
}

// Literal はリテラル値のみを持つ Descriptor を返します。
func Literal(text string) Descriptor {
	return Descriptor{Kind: KindLiteral, Value: text}
}

type descriptorJSON struct {
	Text       *string `json:"text,omitempty"`
	File       *string `json:"file,omitempty"`
	Exec       *string `json:"exec,omitempty"`
	Utterances bool    `json:"utterances,omitempty"`
	Filter     string  `json:"filter,omitempty"`
	Random     int     `json:"random,omitempty"`
	Digits     bool    `json:"digits,omitempty"`
}

// UnmarshalJSON は文字列形式とオブジェクト形式の両方を受け付けます。
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = Literal(s)
		return nil
	}

	var raw descriptorJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("値ソース定義の解析に失敗しました: %w", err)
	}

	out := Descriptor{
		UtteranceOnly: raw.Utterances,
		Filter:        raw.Filter,
		Sample:        raw.Random,
		Digits:        raw.Digits,
	}

	count := 0
	if raw.Text != nil {
		out.Kind, out.Value = KindLiteral, *raw.Text
		count++
	}
	if raw.File != nil {
		out.Kind, out.Value = KindFile, *raw.File
		count++
	}
	if raw.Exec != nil {
		out.Kind, out.Value = KindExec, *raw.Exec
		count++
	}
	if count != 1 {
		return fmt.Errorf("値ソース定義には text / file / exec のいずれか1つが必要です (%d 個指定)", count)
	}
	if out.Sample < 0 {
		return fmt.Errorf("random には正の整数を指定してください: %d", out.Sample)
	}

	*d = out
	return nil
}

// MarshalJSON はオブジェクト形式で出力します。
func (d Descriptor) MarshalJSON() ([]byte, error) {
	raw := descriptorJSON{
		Utterances: d.UtteranceOnly,
		Filter:     d.Filter,
		Random:     d.Sample,
		Digits:     d.Digits,
	}
	v := d.Value
	switch d.Kind {
	case KindFile:
		raw.File = &v
	case KindExec:
		raw.Exec = &v
	default:
		raw.Text = &v
	}
	return json.Marshal(raw)
}

// String はログ出力用の表記を返します。
func (d Descriptor) String() string {
	return fmt.Sprintf("%s:%s", d.Kind, d.Value)
}
