package avs

import (
	"bytes"
	"errors"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// htmlForm はログインページから抽出したフォームです。
type htmlForm struct {
	action string
	method string
	fields url.Values
}

// findForm は name 属性が一致するフォームを探し、name と value の両方を持つ input を集めます。
// ツリー構築ではなくトークン列で判定するため、テーブル内のフォームでも記述どおりの入れ子で扱えます。
// 見つからない場合は nil を返します。
func findForm(body []byte, name string) (*htmlForm, error) {
	z := html.NewTokenizer(bytes.NewReader(body))

	var form *htmlForm
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return form, nil
			}
			return nil, z.Err()

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "form":
				if form == nil && getAttr(tok, "name") == name {
					form = &htmlForm{
						action: getAttr(tok, "action"),
						method: strings.ToUpper(getAttr(tok, "method")),
						fields: url.Values{},
					}
				}
			case "input":
				if form == nil {
					continue
				}
				n, hasName := lookupAttr(tok, "name")
				v, hasValue := lookupAttr(tok, "value")
				if hasName && hasValue {
					form.fields.Set(n, v)
				}
			}

		case html.EndTagToken:
			if form != nil && z.Token().Data == "form" {
				return form, nil
			}
		}
	}
}

func lookupAttr(tok html.Token, key string) (string, bool) {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func getAttr(tok html.Token, key string) string {
	v, _ := lookupAttr(tok, key)
	return v
}
