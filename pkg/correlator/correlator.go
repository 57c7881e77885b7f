package correlator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/shouni/go-skilltest/pkg/config"
	"github.com/shouni/go-skilltest/pkg/queue"
	"github.com/shouni/go-skilltest/pkg/source"
	"github.com/shouni/go-skilltest/pkg/template"
)

// ----------------------------------------------------------------------
// 結果ステータス
// ----------------------------------------------------------------------

// Status は1件の相関処理の結果です。
type Status int

const (
	NoMessage Status = iota
	Malformed
	Incomplete
	Recorded
	Verified
	VerifierFailed
)

func (s Status) String() string {
	switch s {
	case NoMessage:
		return "no-message"
	case Malformed:
		return "malformed"
	case Incomplete:
		return "incomplete"
	case Recorded:
		return "recorded"
	case Verified:
		return "verified"
	case VerifierFailed:
		return "verifier-failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

const (
	verifierLeader = "Unittest:   "
	recordIndent   = "    "
	recordExt      = ".txt"
)

// ----------------------------------------------------------------------
// Correlator
// ----------------------------------------------------------------------

// Correlator は認識呼び出し1回ごとに結果キューから1件受け取り、記録と検証を行います。
// キューのメッセージは相関IDを持たないため、認識は直列に実行されている必要があります。
type Correlator struct {
	q   queue.Queue
	cfg config.Config
	out io.Writer
}

// New は Correlator を作成します。out には検証コマンドの標準エラー出力が転記されます。
func New(q queue.Queue, cfg config.Config, out io.Writer) *Correlator {
	if out == nil {
		out = io.Discard
	}
	return &Correlator{q: q, cfg: cfg, out: out}
}

// verifierInput は検証コマンドの標準入力に渡す JSON です。
type verifierInput struct {
	TestName  string            `json:"testname"`
	Utterance string            `json:"utterance"`
	Resolved  string            `json:"resolved"`
	Types     map[string]string `json:"types"`
	Message   json.RawMessage   `json:"message"`
}

// Correlate はケース c の認識結果をキューから受け取ります。
// verifier が空の場合は検証を行いません。
// メッセージの欠落や不正はステータスと警告ログで表し、エラーにはしません。
// 返すエラーはキュー操作の失敗と *ErrVerifier です。
func (c *Correlator) Correlate(ctx context.Context, verifier string, tc template.Case) (Status, error) {
	msg, err := c.q.Receive(ctx, c.cfg.QueueWaitDuration())
	if err != nil {
		return NoMessage, fmt.Errorf("結果キューの受信に失敗しました: %w", err)
	}
	if msg == nil {
		slog.WarnContext(ctx, "結果メッセージを受信できませんでした", "resolved", tc.Resolved)
		return NoMessage, nil
	}

	if err := c.q.Delete(ctx, msg); err != nil {
		return NoMessage, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg.Body, &fields); err != nil {
		slog.WarnContext(ctx, "結果メッセージの解析に失敗しました", "resolved", tc.Resolved, "id", msg.ID, "error", err)
		return Malformed, nil
	}
	if _, ok := fields["event"]; !ok {
		slog.WarnContext(ctx, "結果メッセージに event がありません", "resolved", tc.Resolved, "id", msg.ID)
		return Incomplete, nil
	}
	if _, ok := fields["response"]; !ok {
		slog.WarnContext(ctx, "結果メッセージに response がありません", "resolved", tc.Resolved, "id", msg.ID)
		return Incomplete, nil
	}

	status := Recorded
	if c.cfg.Keep {
		if err := c.record(tc.CacheKey, msg.Body); err != nil {
			return status, err
		}
	}

	if verifier == "" {
		return status, nil
	}
	return c.verify(ctx, verifier, tc, msg.Body)
}

// record は結果メッセージを <outputdir>/<key>.txt に4スペースインデントで書き出します。
func (c *Correlator) record(key string, body []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", recordIndent); err != nil {
		return err
	}
	if err := os.MkdirAll(c.cfg.OutputDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(c.cfg.OutputDir, key+recordExt)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("結果の保存に失敗しました (%s): %w", path, err)
	}
	return nil
}

func (c *Correlator) verify(ctx context.Context, verifier string, tc template.Case, message []byte) (Status, error) {
	input, err := json.Marshal(verifierInput{
		TestName:  tc.Test,
		Utterance: tc.Template,
		Resolved:  tc.Resolved,
		Types:     tc.SlotValues(),
		Message:   message,
	})
	if err != nil {
		return VerifierFailed, err
	}

	command := c.cfg.ExpandPaths(verifier)
	cmd := source.ShellCommand(ctx, command)
	cmd.Stdin = bytes.NewReader(input)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	c.echo(stderr.String())

	if runErr != nil {
		verr := &ErrVerifier{Command: command, Resolved: tc.Resolved, WrappedErr: runErr}
		slog.ErrorContext(ctx, "検証に失敗しました", "resolved", tc.Resolved, "error", verr)
		return VerifierFailed, verr
	}
	return Verified, nil
}

var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// echo は検証コマンドの診断出力を先頭行に "Unittest:" を付け、以降の行を揃えて転記します。
func (c *Correlator) echo(diag string) {
	diag = strings.TrimRight(newlines.Replace(diag), "\n")
	if diag == "" {
		return
	}
	leader := verifierLeader
	for _, line := range strings.Split(diag, "\n") {
		fmt.Fprintf(c.out, "%s %s\n", leader, line)
		leader = strings.Repeat(" ", len(verifierLeader))
	}
}
