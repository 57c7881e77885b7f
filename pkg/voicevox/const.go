package voicevox

import "time"

const (
	DefaultTimeout = 60 * time.Second

	// DefaultStyle は指定スタイルが見つからない場合のフォールバック先です。
	DefaultStyle = "ノーマル"

	// OutputSamplingRate は /synthesis に要求するサンプリングレートです。
	OutputSamplingRate = 16000

	queryKeySamplingRate = "outputSamplingRate"
	queryKeyStereo       = "outputStereo"
)
