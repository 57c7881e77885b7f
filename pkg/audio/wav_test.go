package audio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tone(rate, n int) *PCM {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16((i % 100) * 100)
	}
	return &PCM{SampleRate: rate, Channels: 1, Samples: s}
}

func TestEncodeDecode(t *testing.T) {
	in := tone(16000, 320)

	wav, err := Encode(in)
	require.NoError(t, err)
	assert.Len(t, wav, WavTotalHeaderSize+640)

	out, err := Decode(wav)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecode_SkipsListChunk(t *testing.T) {
	wav, err := Encode(tone(16000, 10))
	require.NoError(t, err)

	// fmt チャンクの直後に LIST チャンク (奇数長 + パディング) を差し込む
	list := []byte("LIST")
	list = binary.LittleEndian.AppendUint32(list, 3)
	list = append(list, 'a', 'b', 'c', 0)

	withList := append([]byte{}, wav[:36]...)
	withList = append(withList, list...)
	withList = append(withList, wav[36:]...)

	data, err := DataChunk(withList)
	require.NoError(t, err)
	assert.Len(t, data, 20)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte("RIFF"))
	var header *ErrInvalidWAVHeader
	assert.ErrorAs(t, err, &header)

	_, err = Encode(&PCM{SampleRate: 16000})
	var empty *ErrNoAudioData
	assert.ErrorAs(t, err, &empty)
}

func TestResample(t *testing.T) {
	in := tone(22050, 22050)

	out := Normalize16k(in)
	assert.Equal(t, TargetSampleRate, out.SampleRate)
	assert.Equal(t, 1, out.Channels)
	assert.Len(t, out.Samples, 16000)
}

func TestToMono(t *testing.T) {
	stereo := &PCM{SampleRate: 16000, Channels: 2, Samples: []int16{100, 300, -200, 200}}
	mono := ToMono(stereo)
	assert.Equal(t, []int16{200, 0}, mono.Samples)
}

func TestWriteWAVAndCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input", "hello.wav")

	assert.False(t, IsCachedWAV(path))
	require.NoError(t, WriteWAV(path, tone(16000, 1600)))
	assert.True(t, IsCachedWAV(path))

	payload, err := ReadL16(path)
	require.NoError(t, err)
	assert.Len(t, payload, 3200)

	// 壊れたファイルはキャッシュとして扱わない
	broken := filepath.Join(dir, "broken.wav")
	require.NoError(t, os.WriteFile(broken, []byte("not a wav"), 0644))
	assert.False(t, IsCachedWAV(broken))
}
