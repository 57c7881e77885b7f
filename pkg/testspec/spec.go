package testspec

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/shouni/go-skilltest/pkg/source"
)

// ----------------------------------------------------------------------
// データモデル (テスト仕様)
// ----------------------------------------------------------------------

// Spec は1つのテスト仕様ファイルの内容です。
type Spec struct {
	Name string `json:"-"`
	Path string `json:"-"`

	Types      map[string][]source.Descriptor `json:"types"`
	Utterances []source.Descriptor            `json:"utterances"`
	Setup      []source.Descriptor            `json:"setup,omitempty"`
	Cleanup    []source.Descriptor            `json:"cleanup,omitempty"`
	Config     map[string]any                 `json:"config,omitempty"`

	// Verifier は結果メッセージを検証するシェルコマンドです。
	Verifier string `json:"unittest,omitempty"`
}

type specJSON struct {
	Types      map[string][]source.Descriptor `json:"types"`
	Utterances []source.Descriptor            `json:"utterances"`
	Setup      []source.Descriptor            `json:"setup"`
	Cleanup    []source.Descriptor            `json:"cleanup"`
	Config     map[string]any                 `json:"config"`
	Unittest   *string                        `json:"unittest"`
	Verifier   *string                        `json:"verifier"`
}

// UnmarshalJSON は検証コマンドのキーとして unittest と verifier の両方を受け付けます。
func (s *Spec) UnmarshalJSON(data []byte) error {
	var raw specJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := Spec{
		Types:      raw.Types,
		Utterances: raw.Utterances,
		Setup:      raw.Setup,
		Cleanup:    raw.Cleanup,
		Config:     raw.Config,
	}
	switch {
	case raw.Unittest != nil:
		out.Verifier = *raw.Unittest
	case raw.Verifier != nil:
		out.Verifier = *raw.Verifier
	}

	*s = out
	return nil
}

// HasVerifier は検証コマンドが宣言されているかを返します。
func (s *Spec) HasVerifier() bool {
	return strings.TrimSpace(s.Verifier) != ""
}

// TypeNames は型名を辞書順で返します。
// 値ソースの解決 (コマンド実行を含む) はこの順に行われます。
func (s *Spec) TypeNames() []string {
	names := make([]string, 0, len(s.Types))
	for name := range s.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ----------------------------------------------------------------------
// 読み込み
// ----------------------------------------------------------------------

// Load はテスト仕様ファイルを読み込みます。
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ErrLoad{Path: path, WrappedErr: err}
	}

	var s Spec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &ErrLoad{Path: path, WrappedErr: err}
	}
	if len(s.Utterances) == 0 {
		return nil, &ErrLoad{Path: path, WrappedErr: fmt.Errorf("utterances が空です")}
	}

	s.Name = filepath.Base(path)
	s.Path = path
	return &s, nil
}

// Locate はテスト名をファイルパスに解決します。
// そのままのパスが存在しなければ testsDir 配下を探します。
func Locate(name, testsDir string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}
	path := filepath.Join(testsDir, name)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	return "", &ErrNotFound{Name: name, TestsDir: testsDir}
}

// Discover は testsDir 直下の "test_" で始まるファイルを名前順で返します。
func Discover(testsDir string) ([]string, error) {
	entries, err := os.ReadDir(testsDir)
	if err != nil {
		return nil, fmt.Errorf("テストディレクトリの読み込みに失敗しました (%s): %w", testsDir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), DiscoveryPrefix) {
			continue
		}
		paths = append(paths, filepath.Join(testsDir, e.Name()))
	}
	return paths, nil
}
