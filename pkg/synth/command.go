package synth

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/shouni/go-skilltest/pkg/audio"
)

// ----------------------------------------------------------------------
// espeak
// ----------------------------------------------------------------------

// Command は外部コマンドに標準入力でテキストを渡し、標準出力の WAV を受け取るバックエンドです。
type Command struct {
	name string
	argv []string
}

// NewEspeak は espeak を男性英語音声で起動するバックエンドを返します。
func NewEspeak() *Command {
	return &Command{name: NameEspeak, argv: []string{"espeak", "-v", "en+m2", "--stdin", "--stdout"}}
}

// NewCommand は任意のコマンドを使うバックエンドを返します。
func NewCommand(name string, argv ...string) *Command {
	return &Command{name: name, argv: argv}
}

func (c *Command) Name() string { return c.name }

func (c *Command) Synthesize(ctx context.Context, text string) (*audio.PCM, error) {
	out, err := run(ctx, c.argv, text)
	if err != nil {
		return nil, &ErrBackend{Backend: c.name, WrappedErr: err}
	}
	pcm, err := audio.Decode(out)
	if err != nil {
		return nil, &ErrBackend{Backend: c.name, WrappedErr: err}
	}
	return pcm, nil
}

// ----------------------------------------------------------------------
// macOS say
// ----------------------------------------------------------------------

// Say は macOS の say コマンドで 16kHz 16bit の WAV を生成するバックエンドです。
// say は標準出力に書き出せないため一時ファイルを経由します。
type Say struct {
	path string
}

func NewSay() *Say {
	return &Say{path: "say"}
}

func (s *Say) Name() string { return NameSay }

func (s *Say) Synthesize(ctx context.Context, text string) (*audio.PCM, error) {
	tmp, err := os.CreateTemp("", "skilltest-say-*.wav")
	if err != nil {
		return nil, &ErrBackend{Backend: NameSay, WrappedErr: err}
	}
	name := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(name)

	argv := []string{s.path, "--file-format=WAVE", "--data-format=LEI16@16000", "-o", name}
	if _, err := run(ctx, argv, text); err != nil {
		return nil, &ErrBackend{Backend: NameSay, WrappedErr: err}
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, &ErrBackend{Backend: NameSay, WrappedErr: err}
	}
	pcm, err := audio.Decode(data)
	if err != nil {
		return nil, &ErrBackend{Backend: NameSay, WrappedErr: err}
	}
	return pcm, nil
}

// run は argv を実行し、text を標準入力に渡して標準出力を返します。
func run(ctx context.Context, argv []string, text string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("コマンドが指定されていません")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s の実行に失敗しました: %w: %s", argv[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
