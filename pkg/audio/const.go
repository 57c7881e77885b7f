package audio

// ----------------------------------------------------------------------
// WAV ファイル定数 (動的チャンク探索ベース)
// ----------------------------------------------------------------------

const (
	// RIFF 構造の必須サイズ定数
	RiffChunkIDSize   = 4 // "RIFF" チャンクIDのサイズ
	RiffChunkSizeSize = 4 // ファイルサイズフィールドのサイズ
	WaveIDSize        = 4 // "WAVE" 識別子のサイズ

	// チャンクヘッダー (ID 4 + サイズ 4)
	ChunkIDSize     = 4
	ChunkSizeSize   = 4
	ChunkHeaderSize = ChunkIDSize + ChunkSizeSize

	FmtChunkSize = 16 // PCM の fmt チャンク本体

	WavRiffHeaderSize  = RiffChunkIDSize + RiffChunkSizeSize + WaveIDSize // 12 bytes
	WavTotalHeaderSize = 44
)

const (
	// 認識サービスに送る音声形式 (16kHz / 16bit / mono)
	TargetSampleRate = 16000
	TargetChannels   = 1
	BitsPerSample    = 16

	formatPCM = 1

	// ContentTypeL16 は生 PCM ペイロードの MIME 表記です。
	ContentTypeL16 = "audio/L16; rate=16000; channels=1"
)
