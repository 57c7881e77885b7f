package testspec

import (
	"context"
	"log/slog"

	"github.com/shouni/go-skilltest/pkg/source"
	"github.com/shouni/go-skilltest/pkg/template"
)

// BuildTypeTable は各型の値ソースを宣言順に解決・連結し、トークン ("{name}") をキーとする表を作ります。
func (s *Spec) BuildTypeTable(ctx context.Context, r *source.Resolver) (template.TypeTable, error) {
	table := make(template.TypeTable, len(s.Types))
	for _, name := range s.TypeNames() {
		vals, err := r.ResolveAll(ctx, s.Types[name])
		if err != nil {
			return nil, err
		}
		table[template.SlotToken(name)] = vals
	}
	return table, nil
}

// Expand はテスト仕様の全ての発話テンプレートを展開し、ケースを定義順に返します。
// 発話自体も値ソースとして解決されるため、ファイルやコマンドからテンプレートを読み込めます。
func (s *Spec) Expand(ctx context.Context, r *source.Resolver) ([]template.Case, error) {
	table, err := s.BuildTypeTable(ctx, r)
	if err != nil {
		return nil, err
	}

	templates, err := r.ResolveAll(ctx, s.Utterances)
	if err != nil {
		return nil, err
	}

	cases, err := template.ExpandAll(s.Name, templates, table)
	if err != nil {
		return nil, err
	}

	slog.Debug("発話を展開しました", "test", s.Name, "templates", len(templates), "cases", len(cases))
	return cases, nil
}

// Actions は setup / cleanup の値ソースを解決し、実行する発話の列を返します。
func Actions(ctx context.Context, r *source.Resolver, ds []source.Descriptor) ([]string, error) {
	if len(ds) == 0 {
		return nil, nil
	}
	return r.ResolveAll(ctx, ds)
}
