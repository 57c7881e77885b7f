package audio

import (
	"encoding/binary"
	"fmt"
)

// PCM は 16bit リニア PCM のサンプル列です。
type PCM struct {
	SampleRate int
	Channels   int
	Samples    []int16 // インターリーブ済み
}

// ----------------------------------------------------------------------
// デコード
// ----------------------------------------------------------------------

// chunk は RIFF 内の 1 チャンクです。
type chunk struct {
	id   string
	body []byte
}

// scanChunks は RIFF ヘッダー直後からチャンクを順に列挙します。
// LISTチャンクなどのメタデータも含め、dataチャンクを動的に探すための基礎です。
func scanChunks(wavBytes []byte) ([]chunk, error) {
	if len(wavBytes) < WavRiffHeaderSize {
		return nil, &ErrInvalidWAVHeader{
			Details: fmt.Sprintf("WAVファイルサイズが短すぎます (RIFFヘッダー不足: %dバイト)", len(wavBytes)),
		}
	}
	if string(wavBytes[0:RiffChunkIDSize]) != "RIFF" || string(wavBytes[8:WavRiffHeaderSize]) != "WAVE" {
		return nil, &ErrInvalidWAVHeader{Details: "RIFF/WAVE 識別子がありません"}
	}

	var chunks []chunk
	offset := WavRiffHeaderSize
	for offset+ChunkHeaderSize <= len(wavBytes) {
		id := string(wavBytes[offset : offset+ChunkIDSize])
		size := int(binary.LittleEndian.Uint32(wavBytes[offset+ChunkIDSize : offset+ChunkHeaderSize]))

		start := offset + ChunkHeaderSize
		end := start + size
		if end > len(wavBytes) {
			// ストリーム出力された WAV はサイズ欄が 0xFFFFFFFF 等になるため、data は末尾まで読む
			if id != "data" {
				return nil, &ErrInvalidWAVHeader{Details: fmt.Sprintf("%q チャンクのデータ長がファイルサイズを超過しています", id)}
			}
			end = len(wavBytes)
		}
		chunks = append(chunks, chunk{id: id, body: wavBytes[start:end]})

		offset = end
		// パディングバイトの考慮 (奇数長のチャンクデータの後)
		if size%2 != 0 {
			offset++
		}
	}
	return chunks, nil
}

// Decode は WAV バイト列を PCM に変換します。16bit リニア PCM のみ対応します。
func Decode(wavBytes []byte) (*PCM, error) {
	chunks, err := scanChunks(wavBytes)
	if err != nil {
		return nil, err
	}

	var fmtBody, data []byte
	for _, c := range chunks {
		switch c.id {
		case "fmt ":
			fmtBody = c.body
		case "data":
			if data == nil {
				data = c.body
			}
		}
	}

	if len(fmtBody) < FmtChunkSize {
		return nil, &ErrInvalidWAVHeader{Details: "'fmt ' チャンクが見つかりませんでした"}
	}
	if data == nil {
		return nil, &ErrInvalidWAVHeader{Details: "WAVファイル内に 'data' チャンクが見つかりませんでした"}
	}

	audioFormat := binary.LittleEndian.Uint16(fmtBody[0:2])
	channels := binary.LittleEndian.Uint16(fmtBody[2:4])
	sampleRate := binary.LittleEndian.Uint32(fmtBody[4:8])
	bits := binary.LittleEndian.Uint16(fmtBody[14:16])

	// WAVE_FORMAT_EXTENSIBLE (0xFFFE) も PCM サブフォーマットとして扱う
	if (audioFormat != formatPCM && audioFormat != 0xFFFE) || bits != BitsPerSample {
		return nil, &ErrUnsupportedFormat{AudioFormat: audioFormat, BitsPerSample: bits}
	}
	if channels == 0 || sampleRate == 0 {
		return nil, &ErrInvalidWAVHeader{Details: "チャンネル数またはサンプリングレートが 0 です"}
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}

	return &PCM{SampleRate: int(sampleRate), Channels: int(channels), Samples: samples}, nil
}

// DataChunk は WAV から生の PCM ペイロード (dataチャンク本体) を取り出します。
func DataChunk(wavBytes []byte) ([]byte, error) {
	chunks, err := scanChunks(wavBytes)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if c.id == "data" {
			if len(c.body) == 0 {
				return nil, &ErrNoAudioData{}
			}
			return c.body, nil
		}
	}
	return nil, &ErrInvalidWAVHeader{Details: "WAVファイル内に 'data' チャンクが見つかりませんでした"}
}

// ----------------------------------------------------------------------
// エンコード
// ----------------------------------------------------------------------

// Encode は PCM から 44 バイトヘッダーの WAV を構築します。
func Encode(p *PCM) ([]byte, error) {
	if p == nil || len(p.Samples) == 0 {
		return nil, &ErrNoAudioData{}
	}
	channels := p.Channels
	if channels <= 0 {
		channels = 1
	}

	dataSize := len(p.Samples) * 2
	buf := make([]byte, WavTotalHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(WavTotalHeaderSize-ChunkHeaderSize+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], FmtChunkSize)
	binary.LittleEndian.PutUint16(buf[20:22], formatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(p.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(p.SampleRate*channels*BitsPerSample/8)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*BitsPerSample/8))            // block align
	binary.LittleEndian.PutUint16(buf[34:36], BitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i, s := range p.Samples {
		binary.LittleEndian.PutUint16(buf[WavTotalHeaderSize+i*2:], uint16(s))
	}
	return buf, nil
}
