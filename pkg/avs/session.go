package avs

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/http/cookiejar"
	"sync"

	"github.com/shouni/go-http-kit/pkg/httpkit"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/shouni/go-skilltest/pkg/config"
)

// ----------------------------------------------------------------------
// セッション構造体とコンストラクタ
// ----------------------------------------------------------------------

// Session は音声認識サービスとの認証状態を保持します。
// 初回の Recognize で遅延ログインし、トークンはプロセス内でのみ保持されます。
type Session struct {
	cfg config.Config

	// web はクッキーを保持し、リダイレクトを自動追跡しないクライアントです。
	// ログインフローと認識リクエストで生のステータスコードを扱うために使います。
	web *http.Client
	jar http.CookieJar
	// token はトークンエンドポイント用のリトライ付きクライアントです。
	token *httpkit.Client

	limiter *rate.Limiter
	group   singleflight.Group

	mu      sync.Mutex
	access  string
	refresh string
}

// NewSession は新しい Session を初期化します。
func NewSession(cfg config.Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("クッキージャーの作成に失敗しました: %w", err)
	}

	limit := rate.Inf
	if cfg.AVSRate > 0 {
		limit = rate.Limit(cfg.AVSRate)
	}

	return &Session{
		cfg: cfg,
		web: &http.Client{
			Jar:     jar,
			Timeout: DefaultTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		jar:     jar,
		token:   httpkit.New(DefaultTimeout),
		limiter: rate.NewLimiter(limit, int(math.Max(1, math.Ceil(cfg.AVSRate)))),
	}, nil
}

// ----------------------------------------------------------------------
// トークン管理
// ----------------------------------------------------------------------

// AccessToken は有効なアクセストークンを返します。未認証の場合はログインフローを実行します。
// 同時に呼ばれた場合もログインは1回だけ行われます。
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	if access := s.currentAccess(); access != "" {
		return access, nil
	}

	v, err, _ := s.group.Do("login", func() (any, error) {
		if access := s.currentAccess(); access != "" {
			return access, nil
		}

		slog.InfoContext(ctx, "認識サービスにログインしています")
		code, err := s.login(ctx)
		if err != nil {
			return "", err
		}
		tok, err := s.exchange(ctx, map[string]string{
			"grant_type":    "authorization_code",
			"code":          code,
			"redirect_uri":  s.cfg.Redirect,
			"client_id":     s.cfg.ClientID,
			"client_secret": s.cfg.Secret,
		})
		if err != nil {
			return "", err
		}
		s.store(tok)
		slog.InfoContext(ctx, "認識サービスへのログインが完了しました")
		return tok.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Refresh はリフレッシュトークンでアクセストークンを更新します。
// stale は呼び出し元が拒否されたトークンで、既に別のワーカーが更新済みならその結果を返します。
func (s *Session) Refresh(ctx context.Context, stale string) (string, error) {
	v, err, _ := s.group.Do("refresh", func() (any, error) {
		s.mu.Lock()
		access, refresh := s.access, s.refresh
		s.mu.Unlock()

		if access != "" && access != stale {
			return access, nil
		}

		slog.InfoContext(ctx, "アクセストークンを更新しています")
		tok, err := s.exchange(ctx, map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": refresh,
			"client_id":     s.cfg.ClientID,
			"client_secret": s.cfg.Secret,
		})
		if err != nil {
			return "", err
		}
		s.store(tok)
		return tok.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Session) currentAccess() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access
}

func (s *Session) store(tok *tokenResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = tok.AccessToken
	s.refresh = tok.RefreshToken
}

func setDefaultHeaders(req *http.Request) {
	for k, v := range defaultHeaders {
		req.Header.Set(k, v)
	}
}
