package template

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Run
	}{
		{"スロットなし", "stop", []Run{{Text: "stop"}}},
		{"単一スロット", "set volume to {num}", []Run{{Text: "set volume to "}, {Text: "{num}", Slot: true}}},
		{"隣接スロット", "{a}{b}", []Run{{Text: "{a}", Slot: true}, {Text: "{b}", Slot: true}}},
		{"閉じ括弧なし", "open { brace", []Run{{Text: "open { brace"}}},
		{"最初の閉じ括弧まで", "x {a{b} y", []Run{{Text: "x "}, {Text: "{a{b}", Slot: true}, {Text: " y"}}},
		{"空文字列", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.in)
			if diff := cmp.Diff(tt.want, got.Runs); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestSlots_DeduplicatedInOrder(t *testing.T) {
	assert.Equal(t, []string{"{b}", "{a}"}, Parse("{b} and {a} or {b}").Slots())
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "set_volume_to_1", CacheKey("set volume to 1"))
	assert.Equal(t, "dont_stop", CacheKey("don't stop"))
	assert.Equal(t, CacheKey("dont stop"), CacheKey("don't stop"))
}

func TestExpand_SingleSlot(t *testing.T) {
	cases, err := Expand("test_volume", Parse("set volume to {num}"), TypeTable{"{num}": {"1"}})
	require.NoError(t, err)

	want := []Case{{
		Test:     "test_volume",
		Template: "set volume to {num}",
		Resolved: "set volume to 1",
		CacheKey: "set_volume_to_1",
		Bindings: map[string]string{"{num}": "1"},
	}}
	if diff := cmp.Diff(want, cases); diff != "" {
		t.Errorf("Expand mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, map[string]string{"num": "1"}, cases[0].SlotValues())
}

func TestExpand_CartesianProductOrder(t *testing.T) {
	tmpl := Parse("{a} to {b}")
	cases, err := Expand("t", tmpl, TypeTable{
		"{a}": {"x", "y"},
		"{b}": {"1", "2", "3"},
	})
	require.NoError(t, err)
	require.Len(t, cases, 6)

	var got []string
	seen := map[string]bool{}
	for _, c := range cases {
		got = append(got, c.Resolved)
		pair := c.Bindings["{a}"] + "/" + c.Bindings["{b}"]
		assert.False(t, seen[pair], "組み合わせは一意であること: %s", pair)
		seen[pair] = true

		// 束縛からテンプレートを再構成すると同じ文字列になる
		rendered, err := tmpl.Substitute(c.Bindings)
		require.NoError(t, err)
		assert.Equal(t, c.Resolved, rendered)
	}

	assert.Equal(t, []string{"x to 1", "x to 2", "x to 3", "y to 1", "y to 2", "y to 3"}, got)
}

func TestExpand_RepeatedSlotBindsSameValue(t *testing.T) {
	cases, err := Expand("t", Parse("{n} plus {n}"), TypeTable{"{n}": {"1", "2"}})
	require.NoError(t, err)

	var got []string
	for _, c := range cases {
		got = append(got, c.Resolved)
	}
	assert.Equal(t, []string{"1 plus 1", "2 plus 2"}, got)
}

func TestExpand_NoSlots(t *testing.T) {
	cases, err := Expand("t", Parse("stop"), nil)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "stop", cases[0].Resolved)
	assert.Empty(t, cases[0].Bindings)
}

func TestExpand_UnknownSlot(t *testing.T) {
	_, err := Expand("t", Parse("play {song}"), TypeTable{"{num}": {"1"}})

	var unknown *ErrUnknownSlot
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "{song}", unknown.Slot)
}

func TestExpand_EmptyTypeYieldsNoCases(t *testing.T) {
	cases, err := Expand("t", Parse("play {song}"), TypeTable{"{song}": nil})
	require.NoError(t, err)
	assert.Empty(t, cases)
}

func TestExpandAll_KeepsTemplateOrder(t *testing.T) {
	cases, err := ExpandAll("t", []string{"stop", "go {n}"}, TypeTable{"{n}": {"1", "2"}})
	require.NoError(t, err)

	var got []string
	for _, c := range cases {
		got = append(got, c.CacheKey)
	}
	assert.Equal(t, []string{"stop", "go_1", "go_2"}, got)
}
