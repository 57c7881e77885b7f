package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// ----------------------------------------------------------------------
// 音声アーティファクト (キャッシュファイル)
// ----------------------------------------------------------------------

// IsCachedWAV は path に再利用可能な WAV が存在するか確認します。
// 存在しても内容が WAV と判定できない場合 (書き込み途中で中断された等) は false を返します。
func IsCachedWAV(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	return mtype.Is("audio/wav")
}

// WriteWAV は PCM を 16kHz モノラルに揃えて path に書き出します。
func WriteWAV(path string, p *PCM) error {
	data, err := Encode(Normalize16k(p))
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// ReadL16 は WAV ファイルを読み込み、認識サービスに送る生 PCM ペイロードを返します。
func ReadL16(path string) ([]byte, error) {
	wav, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("音声入力ファイルの読み込みに失敗しました (%s): %w", path, err)
	}
	return DataChunk(wav)
}

// writeFile は一時ファイル経由で書き込み、途中状態のファイルがキャッシュとして残らないようにします。
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("出力ディレクトリの作成に失敗しました (%s): %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("音声ファイルの書き込みに失敗しました (%s): %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}
