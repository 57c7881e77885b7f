package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// ----------------------------------------------------------------------
// 設定ファイルの読み込み
// ----------------------------------------------------------------------

// LoadFile は path の YAML（JSON も可）を base に重ねた Config を返します。
// ファイルに存在しないキーは base の値が維持されます。
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("設定ファイルの読み込みに失敗しました (%s): %w", path, err)
	}

	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("設定ファイルの解析に失敗しました (%s): %w", path, err)
	}
	return cfg.Normalize(), nil
}

// Load は既定値にホーム、カレントディレクトリの順で .skilltest を重ねます。
// explicit が指定された場合はそれらを無視し、既定値に explicit のみを重ねます。
func Load(explicit string) (Config, error) {
	cfg := Default()

	if explicit != "" {
		return LoadFile(explicit, cfg)
	}

	var dirs []string
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, home)
	}
	dirs = append(dirs, ".")

	for _, dir := range dirs {
		path := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		next, err := LoadFile(path, cfg)
		if err != nil {
			return cfg, err
		}
		slog.Debug("設定ファイルをマージしました", "path", path)
		cfg = next
	}

	return cfg, nil
}

// WriteSample は既定の設定をインデント付き JSON として path に書き出します。
func WriteSample(path string) error {
	data, err := json.MarshalIndent(Default(), "", "    ")
	if err != nil {
		return fmt.Errorf("サンプル設定のエンコードに失敗しました: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("サンプル設定の書き込みに失敗しました (%s): %w", path, err)
	}
	return nil
}
