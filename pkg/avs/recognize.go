package avs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/goccy/go-json"

	"github.com/shouni/go-skilltest/pkg/audio"
)

// ----------------------------------------------------------------------
// リクエストメタデータ
// ----------------------------------------------------------------------

type deviceContext struct {
	Name      string          `json:"name"`
	Namespace string          `json:"namespace"`
	Payload   playbackPayload `json:"payload"`
}

type playbackPayload struct {
	StreamID             string `json:"streamId"`
	OffsetInMilliseconds int    `json:"offsetInMilliseconds"`
	PlayerActivity       string `json:"playerActivity"`
}

type recognizeRequest struct {
	MessageHeader struct {
		DeviceContext []deviceContext `json:"deviceContext"`
	} `json:"messageHeader"`
	MessageBody struct {
		Profile string `json:"profile"`
		Locale  string `json:"locale"`
		Format  string `json:"format"`
	} `json:"messageBody"`
}

func newRecognizeRequest() recognizeRequest {
	var r recognizeRequest
	r.MessageHeader.DeviceContext = []deviceContext{{
		Name:      "playbackState",
		Namespace: "AudioPlayer",
		Payload:   playbackPayload{PlayerActivity: "IDLE"},
	}}
	r.MessageBody.Profile = "alexa-close-talk"
	r.MessageBody.Locale = "en-us"
	r.MessageBody.Format = audio.ContentTypeL16
	return r
}

// ----------------------------------------------------------------------
// 認識
// ----------------------------------------------------------------------

// Recognize は 16kHz モノラルの生 PCM を送信し、応答の音声 (MP3) を返します。
// 通信失敗時に1回、403 の場合はトークン更新後に1回、それでも失敗ステータスなら更に1回だけ再送します。
func (s *Session) Recognize(ctx context.Context, l16 []byte) ([]byte, error) {
	token, err := s.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.post(ctx, token, l16)
	if err != nil {
		slog.WarnContext(ctx, "認識リクエストの通信に失敗したため再送します", "error", err)
		resp, err = s.post(ctx, token, l16)
		if err != nil {
			return nil, &ErrRecognition{WrappedErr: err}
		}
	}

	if resp.StatusCode == http.StatusForbidden {
		discard(resp)
		token, err = s.Refresh(ctx, token)
		if err != nil {
			return nil, err
		}
		resp, err = s.post(ctx, token, l16)
		if err != nil {
			return nil, &ErrRecognition{WrappedErr: err}
		}
	}

	if !isSuccess(resp.StatusCode) {
		slog.WarnContext(ctx, "認識リクエストが失敗ステータスを返したため再送します", "status", resp.StatusCode)
		discard(resp)
		resp, err = s.post(ctx, token, l16)
		if err != nil {
			return nil, &ErrRecognition{WrappedErr: err}
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ErrRecognition{StatusCode: resp.StatusCode, Header: resp.Header, WrappedErr: err}
	}

	if data, ok := audioPart(resp.Header.Get("Content-Type"), body); ok {
		return data, nil
	}

	slog.ErrorContext(ctx, "認識応答に音声パートがありません",
		"status", resp.StatusCode,
		"header", resp.Header,
		"body", string(body))
	return nil, &ErrRecognition{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
}

// post はメタデータと音声の2パートからなる multipart リクエストを送信します。
// ボディは毎回 l16 から組み立て直すため、再送時も先頭から送られます。
func (s *Session) post(ctx context.Context, token string, l16 []byte) (*http.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, contentType, err := buildMultipart(l16)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.RecognizeURL, body)
	if err != nil {
		return nil, err
	}
	setDefaultHeaders(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	return s.web.Do(req)
}

func buildMultipart(l16 []byte) (*bytes.Buffer, string, error) {
	meta, err := json.Marshal(newRecognizeRequest())
	if err != nil {
		return nil, "", err
	}

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	parts := []struct {
		name        string
		contentType string
		data        []byte
	}{
		{"request", contentTypeJSON, meta},
		{"audio", audio.ContentTypeL16, l16},
	}
	for _, p := range parts {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, p.name, p.name))
		h.Set("Content-Type", p.contentType)
		pw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := pw.Write(p.data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

// audioPart は multipart 応答から audio/mpeg のパートを探します。
// Content-Type のないパートは内容から判定します。
func audioPart(contentType string, body []byte) ([]byte, bool) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return nil, false
	}

	r := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	for {
		part, err := r.NextPart()
		if err != nil {
			return nil, false
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return nil, false
		}

		declared := part.Header.Get("Content-Type")
		if declared == "" {
			if mimetype.Detect(data).Is(contentTypeMPEG) {
				return data, true
			}
			continue
		}
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt == contentTypeMPEG {
			return data, true
		}
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
