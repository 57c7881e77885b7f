package avs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
)

// page はログインフロー中に取得した HTML ページです。
type page struct {
	url  *url.URL
	body []byte
}

// login は認可ページから acknowledgement → signIn → consent の各フォームを順に送信し、認可コードを取得します。
// ページにフォームがないステップは直前の応答のまま次へ進みます。
func (s *Session) login(ctx context.Context) (string, error) {
	start, err := s.authorizeURL()
	if err != nil {
		return "", &ErrAuthentication{Reason: "認可URLの構築に失敗しました", WrappedErr: err}
	}

	var referer string
	resp, err := s.do(ctx, http.MethodGet, start, nil, referer)
	if err != nil {
		return "", &ErrAuthentication{Reason: "ログインページの取得に失敗しました", WrappedErr: err}
	}
	p, code, err := s.follow(ctx, resp, referer)
	if err != nil || code != "" {
		return code, err
	}

	for _, st := range loginSteps {
		form, err := findForm(p.body, st.form)
		if err != nil {
			return "", &ErrAuthentication{Reason: "ログインページの解析に失敗しました", WrappedErr: err}
		}
		if form == nil {
			slog.DebugContext(ctx, "フォームが見つからないためステップをスキップします", "form", st.form)
			continue
		}

		action, err := p.url.Parse(form.action)
		if err != nil {
			return "", &ErrAuthentication{Reason: fmt.Sprintf("フォーム %s の action が不正です", st.form), WrappedErr: err}
		}
		for k, v := range st.fields(s) {
			form.fields.Set(k, v)
		}
		if st.signIn {
			// サインイン成功に必要
			s.jar.SetCookies(action, []*http.Cookie{{Name: "ap-fid", Value: "", Quoted: true}})
		}
		referer = p.url.String()

		slog.DebugContext(ctx, "ログインフォームを送信します", "form", st.form, "method", st.method, "action", action.String())
		resp, err := s.submit(ctx, st.method, action, form.fields, referer)
		if err != nil {
			return "", &ErrAuthentication{Reason: fmt.Sprintf("フォーム %s の送信に失敗しました", st.form), WrappedErr: err}
		}
		p, code, err = s.follow(ctx, resp, referer)
		if err != nil || code != "" {
			return code, err
		}
	}

	return "", &ErrAuthentication{Reason: "全てのステップを終えても認可コードを取得できませんでした"}
}

// authorizeURL は client_id / scope / scope_data などを付与した認可ページの URL を返します。
func (s *Session) authorizeURL() (*url.URL, error) {
	u, err := url.Parse(s.cfg.AuthURL)
	if err != nil {
		return nil, err
	}

	scopeData, err := json.Marshal(map[string]any{
		scopeAlexaAll: map[string]any{
			"productID": s.cfg.DeviceID,
			"productInstanceAttributes": map[string]string{
				"deviceSerialNumber": deviceSerialNumber,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	q := u.Query()
	q.Set("client_id", s.cfg.ClientID)
	q.Set("scope", scopeAlexaAll)
	q.Set("scope_data", string(scopeData))
	q.Set("response_type", "code")
	q.Set("redirect_uri", s.cfg.Redirect)
	u.RawQuery = q.Encode()
	return u, nil
}

// submit はフォームを送信します。GET の場合はフィールドをクエリに追加し、POST の場合はボディに入れます。
func (s *Session) submit(ctx context.Context, method string, action *url.URL, fields url.Values, referer string) (*http.Response, error) {
	if method == http.MethodGet {
		u := *action
		q := u.Query()
		for k, vs := range fields {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		return s.do(ctx, http.MethodGet, &u, nil, referer)
	}
	return s.do(ctx, http.MethodPost, action, fields, referer)
}

func (s *Session) do(ctx context.Context, method string, u *url.URL, form url.Values, referer string) (*http.Response, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	setDefaultHeaders(req)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	return s.web.Do(req)
}

// follow はリダイレクトを手動で追跡します。
// リダイレクト先が設定のリダイレクトURIで始まる場合はそのクエリから認可コードを取り出します。
// リダイレクトでない応答に到達した場合はそのページを返します。
func (s *Session) follow(ctx context.Context, resp *http.Response, referer string) (*page, string, error) {
	for hop := 0; ; hop++ {
		location := resp.Header.Get("Location")
		if !isRedirect(resp.StatusCode) || location == "" {
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, "", &ErrAuthentication{Reason: "ログインページの読み込みに失敗しました", WrappedErr: err}
			}
			return &page{url: resp.Request.URL, body: body}, "", nil
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		target, err := resp.Request.URL.Parse(location)
		if err != nil {
			return nil, "", &ErrAuthentication{Reason: "リダイレクト先が不正です", WrappedErr: err}
		}
		if strings.HasPrefix(target.String(), s.cfg.Redirect) {
			q := target.Query()
			if code := q.Get("code"); code != "" {
				return nil, code, nil
			}
			return nil, "", &ErrAuthentication{Reason: fmt.Sprintf("リダイレクトURIに認可コードがありません (error=%q)", q.Get("error"))}
		}
		if hop >= maxRedirects {
			return nil, "", &ErrAuthentication{Reason: fmt.Sprintf("リダイレクトが %d 回を超えました", maxRedirects)}
		}

		slog.DebugContext(ctx, "リダイレクトを追跡します", "target", target.String())
		resp, err = s.do(ctx, http.MethodGet, target, nil, referer)
		if err != nil {
			return nil, "", &ErrAuthentication{Reason: "リダイレクト先の取得に失敗しました", WrappedErr: err}
		}
	}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
