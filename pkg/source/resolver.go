package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"unicode"
)

// ----------------------------------------------------------------------
// Resolver
// ----------------------------------------------------------------------

// Resolver は Descriptor を順序付きの文字列列に解決します。
type Resolver struct {
	expand func(string) string

	rndMu sync.Mutex
	rnd   *rand.Rand
}

// Option は Resolver の設定を変更する関数です。
type Option func(*Resolver)

// WithRand はサンプリングに使う乱数源を指定します (テストでの再現性確保用)。
func WithRand(r *rand.Rand) Option {
	return func(res *Resolver) {
		if r != nil {
			res.rnd = r
		}
	}
}

// WithExpander はファイルパスやコマンドのプレースホルダー置換関数を指定します。
func WithExpander(f func(string) string) Option {
	return func(res *Resolver) {
		if f != nil {
			res.expand = f
		}
	}
}

// NewResolver は Resolver を生成します。
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		expand: func(s string) string { return s },
		rnd:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve は取得元から値を読み出し、filter → random → digits の順に変換を適用します。
func (r *Resolver) Resolve(ctx context.Context, d Descriptor) ([]string, error) {
	value := r.expand(d.Value)

	var vals []string
	var err error
	switch d.Kind {
	case KindLiteral:
		vals = []string{value}
	case KindFile:
		vals, err = readFile(value, d.UtteranceOnly)
	case KindExec:
		vals, err = runCommand(ctx, value)
	default:
		err = fmt.Errorf("未知の値ソース種別です: %d", d.Kind)
	}
	if err != nil {
		return nil, &ErrResolution{Source: d, WrappedErr: err}
	}

	vals, err = r.transform(d, vals)
	if err != nil {
		return nil, &ErrResolution{Source: d, WrappedErr: err}
	}

	slog.Debug("値ソースを解決しました", "source", d.String(), "count", len(vals))
	return vals, nil
}

// ResolveAll は複数の Descriptor を定義順に解決し、結果を連結します。
func (r *Resolver) ResolveAll(ctx context.Context, ds []Descriptor) ([]string, error) {
	var out []string
	for _, d := range ds {
		vals, err := r.Resolve(ctx, d)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

// ----------------------------------------------------------------------
// 変換チェーン
// ----------------------------------------------------------------------

func (r *Resolver) transform(d Descriptor, vals []string) ([]string, error) {
	if d.Filter != "" {
		// 先頭一致 (全体一致ではない)
		rx, err := regexp.Compile(`^(?:` + d.Filter + `)`)
		if err != nil {
			return nil, fmt.Errorf("filter の正規表現が不正です: %w", err)
		}
		filtered := make([]string, 0, len(vals))
		for _, v := range vals {
			if rx.MatchString(v) {
				filtered = append(filtered, v)
			}
		}
		vals = filtered
	}

	if d.Sample > 0 {
		sampled, err := r.sample(vals, d.Sample)
		if err != nil {
			return nil, err
		}
		vals = sampled
	}

	if d.Digits {
		out := make([]string, len(vals))
		for i, v := range vals {
			out[i] = ExpandDigits(v)
		}
		vals = out
	}

	return vals, nil
}

// sample は母集団から n 個を重複なしで一様に抽出します。
func (r *Resolver) sample(vals []string, n int) ([]string, error) {
	if n > len(vals) {
		return nil, &ErrInsufficientSamples{Requested: n, Available: len(vals)}
	}

	r.rndMu.Lock()
	perm := r.rnd.Perm(len(vals))
	r.rndMu.Unlock()

	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = vals[perm[i]]
	}
	return out, nil
}

// ExpandDigits は数字のみからなる値を 1 桁ずつ空白区切りにします ("123" → "1 2 3")。
// 数字以外を含む値はそのまま返します。
func ExpandDigits(v string) string {
	if v == "" {
		return v
	}
	for _, c := range v {
		if c < '0' || c > '9' {
			return v
		}
	}
	return strings.Join(strings.Split(v, ""), " ")
}

// ----------------------------------------------------------------------
// 取得元
// ----------------------------------------------------------------------

func readFile(path string, utteranceOnly bool) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	lines := splitLines(string(data))
	if !utteranceOnly {
		return lines, nil
	}

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		// "IntentName some utterance" → "some utterance"
		i := strings.IndexFunc(line, unicode.IsSpace)
		if i < 0 {
			continue // インテント名のみの行
		}
		if rest := strings.TrimSpace(line[i:]); rest != "" {
			out = append(out, rest)
		}
	}
	return out, nil
}

func runCommand(ctx context.Context, command string) ([]string, error) {
	cmd := ShellCommand(ctx, command)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("コマンドの実行に失敗しました (%s): %w: %s", command, err, strings.TrimSpace(stderr.String()))
	}
	return splitLines(stdout.String()), nil
}

// ShellCommand はプラットフォームのシェル経由でコマンドを実行する *exec.Cmd を返します。
func ShellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}

var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// splitLines は行ごとに前後の空白を除去し、空行と '#' で始まる行を捨てます。
func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(newlines.Replace(s), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
