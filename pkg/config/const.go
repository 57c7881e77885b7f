package config

import "runtime"

// ----------------------------------------------------------------------
// 既定値
// ----------------------------------------------------------------------

const (
	// ConfigFileName はホーム/カレントディレクトリで探索される設定ファイル名です。
	ConfigFileName = ".skilltest"

	PlaceholderSkillDir = "{skilldir}"
	PlaceholderTestsDir = "{testsdir}"

	DefaultQueueWait = 10 // 秒

	defaultAuthURL      = "https://www.amazon.com/ap/oa"
	defaultTokenURL     = "https://api.amazon.com/auth/o2/token"
	defaultRecognizeURL = "https://access-alexa-na.amazon.com/v1/avs/speechrecognizer/recognize"
	defaultVoicevoxURL  = "http://localhost:50021"
)

// Default はプレースホルダーを含む初期設定を返します。--writeconfig の出力元でもあります。
func Default() Config {
	return Config{
		InputDir:  "./results/input",
		OutputDir: "./results/output",
		SkillDir:  "./skill",
		TestsDir:  "./tests",

		AVSTasks: 1,
		TTSTasks: 1,

		Synth:        defaultSynth(),
		Invocation:   "your skill's invocation name",
		SpeechPrefix: "alexa ask",

		QueueURL:      "",
		QueueStream:   "SKILLTEST",
		QueueSubject:  "skilltest.results",
		QueueConsumer: "skilltest",
		QueueWait:     DefaultQueueWait,

		Email:    "your AVS email address",
		Password: "your AVS password",
		ClientID: "your AVS device clientid",
		Secret:   "your AVS device secret",
		DeviceID: "your AVS device type ID",
		Redirect: "your AVS device redirect URL",

		AuthURL:      defaultAuthURL,
		TokenURL:     defaultTokenURL,
		RecognizeURL: defaultRecognizeURL,

		VoicevoxURL:     defaultVoicevoxURL,
		VoicevoxSpeaker: "ずんだもん",
		VoicevoxStyle:   "ノーマル",

		AzureVoice: "en-US-GuyNeural",

		LogLevel: "info",
	}
}

func defaultSynth() string {
	switch runtime.GOOS {
	case "windows":
		return "azure"
	case "darwin":
		return "say"
	}
	return "espeak"
}
