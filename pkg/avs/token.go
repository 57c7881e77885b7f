package avs

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}

// exchange はトークンエンドポイントにフォームを送信し、アクセストークンとリフレッシュトークンを受け取ります。
func (s *Session) exchange(ctx context.Context, fields map[string]string) (*tokenResponse, error) {
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &ErrAuthentication{Reason: "トークンリクエストの構築に失敗しました", WrappedErr: err}
	}
	setDefaultHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := s.token.DoRequest(req)
	if err != nil {
		return nil, &ErrAuthentication{Reason: fields["grant_type"] + " によるトークン取得に失敗しました", WrappedErr: err}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, &ErrAuthentication{Reason: "トークン応答JSONのデコードに失敗しました", WrappedErr: err}
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" {
		return nil, &ErrAuthentication{Reason: "トークン応答に access_token / refresh_token がありません"}
	}
	return &tok, nil
}
