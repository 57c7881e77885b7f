package config

import (
	"fmt"
	"math"
	"strconv"
)

// ----------------------------------------------------------------------
// 上書きマージ
// ----------------------------------------------------------------------

// ErrUnknownKey は上書きが許可されていない（存在しない）設定キーを示します。
type ErrUnknownKey struct {
	Key string
}

func (e *ErrUnknownKey) Error() string {
	return fmt.Sprintf("上書きできない設定キーです: %q", e.Key)
}

// ErrInvalidValue は設定値の型が期待と異なることを示します。
type ErrInvalidValue struct {
	Key   string
	Value any
	Want  string
}

func (e *ErrInvalidValue) Error() string {
	return fmt.Sprintf("設定キー %q の値 %v は %s ではありません", e.Key, e.Value, e.Want)
}

// Merge は overrides を適用した新しい Config を返します。レシーバは変更されません。
// テスト仕様の "config" ブロックはここで列挙されたキーのみ上書きできます。
// avsrate は認識セッション全体で共有するレート制限のため上書きできません。
func (c Config) Merge(overrides map[string]any) (Config, error) {
	out := c
	for key, raw := range overrides {
		var err error
		switch key {
		case "inputdir":
			out.InputDir, err = asString(key, raw)
		case "outputdir":
			out.OutputDir, err = asString(key, raw)
		case "skilldir":
			out.SkillDir, err = asString(key, raw)
		case "testsdir":
			out.TestsDir, err = asString(key, raw)
		case "bypass":
			out.Bypass, err = asBool(key, raw)
		case "regen":
			out.Regen, err = asBool(key, raw)
		case "keep":
			out.Keep, err = asBool(key, raw)
		case "avstasks":
			out.AVSTasks, err = asInt(key, raw)
		case "ttstasks":
			out.TTSTasks, err = asInt(key, raw)
		case "synth":
			out.Synth, err = asString(key, raw)
		case "invocation":
			out.Invocation, err = asString(key, raw)
		case "speechprefix":
			out.SpeechPrefix, err = asString(key, raw)
		case "queueurl":
			out.QueueURL, err = asString(key, raw)
		case "queuewait":
			out.QueueWait, err = asInt(key, raw)
		case "voicevoxspeaker":
			out.VoicevoxSpeaker, err = asString(key, raw)
		case "voicevoxstyle":
			out.VoicevoxStyle, err = asString(key, raw)
		case "azurevoice":
			out.AzureVoice, err = asString(key, raw)
		case "loglevel":
			out.LogLevel, err = asString(key, raw)
		default:
			return c, &ErrUnknownKey{Key: key}
		}
		if err != nil {
			return c, err
		}
	}
	return out.Normalize(), nil
}

// ----------------------------------------------------------------------
// 型変換ヘルパー
// ----------------------------------------------------------------------

func asString(key string, v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	}
	return "", &ErrInvalidValue{Key: key, Value: v, Want: "文字列"}
}

func asBool(key string, v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b, nil
		}
	}
	return false, &ErrInvalidValue{Key: key, Value: v, Want: "真偽値"}
}

func asInt(key string, v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case uint64:
		return int(t), nil
	case float64:
		if t == math.Trunc(t) {
			return int(t), nil
		}
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n, nil
		}
	}
	return 0, &ErrInvalidValue{Key: key, Value: v, Want: "整数"}
}
