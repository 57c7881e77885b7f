package voicevox

import (
	"context"
	"log/slog"

	"github.com/goccy/go-json"
)

// SpeakerClient は /speakers エンドポイントを呼び出す能力を抽象化するインターフェースです。
type SpeakerClient interface {
	GetSpeakers(ctx context.Context) ([]byte, error)
}

// VVSpeaker はVOICEVOXの /speakers APIの応答JSON構造の一部に対応する型です。
type VVSpeaker struct {
	Name   string `json:"name"`
	Styles []struct {
		Name string `json:"name"`
		ID   int    `json:"id"`
	} `json:"styles"`
}

// StyleTable は話者名 → スタイル名 → Style ID の対応表です。
type StyleTable map[string]map[string]int

// LoadStyles は /speakers エンドポイントからデータを取得し、StyleTable を構築します。
func LoadStyles(ctx context.Context, client SpeakerClient) (StyleTable, error) {
	bodyBytes, err := client.GetSpeakers(ctx)
	if err != nil {
		return nil, err
	}

	var vvSpeakers []VVSpeaker
	if err := json.Unmarshal(bodyBytes, &vvSpeakers); err != nil {
		return nil, &ErrInvalidJSON{Details: "/speakers 応答", WrappedErr: err}
	}

	table := make(StyleTable, len(vvSpeakers))
	count := 0
	for _, spk := range vvSpeakers {
		styles := make(map[string]int, len(spk.Styles))
		for _, style := range spk.Styles {
			styles[style.Name] = style.ID
			count++
		}
		table[spk.Name] = styles
	}

	slog.InfoContext(ctx, "VOICEVOXスタイルデータが正常にロードされました", "speakers", len(table), "styles_count", count)
	return table, nil
}

// StyleID は話者とスタイルから Style ID を検索します。
// スタイルが見つからない場合はその話者のデフォルトスタイル (ノーマル) にフォールバックします。
func (t StyleTable) StyleID(ctx context.Context, speaker, style string) (int, error) {
	styles, ok := t[speaker]
	if !ok {
		return 0, &ErrStyleNotFound{Speaker: speaker, Style: style}
	}
	if style == "" {
		style = DefaultStyle
	}
	if id, ok := styles[style]; ok {
		return id, nil
	}

	if id, ok := styles[DefaultStyle]; ok {
		slog.WarnContext(ctx, "指定スタイルが未定義のためフォールバック",
			"speaker", speaker,
			"original_style", style,
			"fallback_style", DefaultStyle)
		return id, nil
	}
	return 0, &ErrStyleNotFound{Speaker: speaker, Style: style}
}
