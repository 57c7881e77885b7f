package audio

import "fmt"

// ErrInvalidWAVHeader はWAVデータが短すぎる、またはヘッダーの記載とデータ長が一致しないなど、
// ヘッダーに問題があることを示します。
type ErrInvalidWAVHeader struct {
	Details string
}

func (e *ErrInvalidWAVHeader) Error() string {
	return fmt.Sprintf("WAVデータのヘッダーが無効です: %s", e.Details)
}

// ErrUnsupportedFormat は 16bit リニア PCM 以外の WAV を示します。
type ErrUnsupportedFormat struct {
	AudioFormat   uint16
	BitsPerSample uint16
}

func (e *ErrUnsupportedFormat) Error() string {
	return fmt.Sprintf("未対応のWAV形式です (format=%d, bits=%d)", e.AudioFormat, e.BitsPerSample)
}

// ErrNoAudioData は抽出されたオーディオデータがゼロサイズであることを示します。
type ErrNoAudioData struct{}

func (e *ErrNoAudioData) Error() string {
	return "有効なオーディオデータがありません"
}
