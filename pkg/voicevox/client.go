package voicevox

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/shouni/go-http-kit/pkg/httpkit"
)

// ----------------------------------------------------------------------
// クライアント構造体とコンストラクタ
// ----------------------------------------------------------------------

// Client はVOICEVOXエンジンへのAPIリクエストを処理するクライアントです。
// httpkit.Client を利用してリトライ機能を内包します。
type Client struct {
	client *httpkit.Client
	apiURL string
}

// NewClient は新しいClientインスタンスを初期化します。
func NewClient(apiURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		client: httpkit.New(timeout),
		apiURL: apiURL,
	}
}

func (c *Client) buildURL(endpoint string) (*url.URL, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, &ErrAPINetwork{Endpoint: endpoint, WrappedErr: fmt.Errorf("API URLのパース失敗: %w", err)}
	}

	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, &ErrAPINetwork{Endpoint: endpoint, WrappedErr: fmt.Errorf("エンドポイント結合失敗: %w", err)}
	}

	return u, nil
}

// ----------------------------------------------------------------------
// API呼び出しロジック
// ----------------------------------------------------------------------

// AudioQuery は /audio_query APIを呼び出し、合成用のクエリJSONを返します。
// 出力は認識サービスの入力形式に合わせ、16kHz モノラルに書き換えます。
func (c *Client) AudioQuery(ctx context.Context, text string, styleID int) ([]byte, error) {
	const endpoint = "/audio_query"

	u, err := c.buildURL(endpoint)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	q.Set("text", text)
	q.Set("speaker", strconv.Itoa(styleID))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return nil, &ErrAPINetwork{Endpoint: endpoint, WrappedErr: fmt.Errorf("リクエスト構築失敗: %w", err)}
	}

	bodyBytes, err := c.client.DoRequest(req)
	if err != nil {
		return nil, &ErrAPINetwork{Endpoint: endpoint, WrappedErr: err}
	}

	// 未知のフィールドはそのまま /synthesis に渡すため map で扱う
	var query map[string]any
	if err := json.Unmarshal(bodyBytes, &query); err != nil {
		return nil, &ErrInvalidJSON{Details: fmt.Sprintf("%s応答JSONのデコード", endpoint), WrappedErr: err}
	}
	query[queryKeySamplingRate] = OutputSamplingRate
	query[queryKeyStereo] = false

	out, err := json.Marshal(query)
	if err != nil {
		return nil, &ErrInvalidJSON{Details: fmt.Sprintf("%sクエリJSONの再エンコード", endpoint), WrappedErr: err}
	}
	return out, nil
}

// Synthesis は /synthesis APIを呼び出し、WAV形式の音声データを返します。
func (c *Client) Synthesis(ctx context.Context, queryBody []byte, styleID int) ([]byte, error) {
	const endpoint = "/synthesis"

	u, err := c.buildURL(endpoint)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	q.Set("speaker", strconv.Itoa(styleID))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(queryBody))
	if err != nil {
		return nil, &ErrAPINetwork{Endpoint: endpoint, WrappedErr: fmt.Errorf("リクエスト構築失敗: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	wavData, err := c.client.DoRequest(req)
	if err != nil {
		return nil, &ErrAPINetwork{Endpoint: endpoint, WrappedErr: err}
	}
	return wavData, nil
}

// GetSpeakers は /speakers APIを呼び出し、全てのスピーカー情報（JSONバイトスライス）を返します。
func (c *Client) GetSpeakers(ctx context.Context) ([]byte, error) {
	const endpoint = "/speakers"

	u, err := c.buildURL(endpoint)
	if err != nil {
		return nil, err
	}

	bodyBytes, err := c.client.FetchBytes(ctx, u.String())
	if err != nil {
		return nil, &ErrAPINetwork{Endpoint: endpoint, WrappedErr: err}
	}
	return bodyBytes, nil
}

// Speak はテキストを合成し、WAVデータを返します (audio_query → synthesis)。
func (c *Client) Speak(ctx context.Context, text string, styleID int) ([]byte, error) {
	query, err := c.AudioQuery(ctx, text, styleID)
	if err != nil {
		return nil, err
	}
	return c.Synthesis(ctx, query, styleID)
}
