package config

import (
	"fmt"
	"strings"
	"time"
)

// ----------------------------------------------------------------------
// 設定構造体
// ----------------------------------------------------------------------

// Config はハーネス全体の設定値です。
// 値として受け渡され、テスト仕様ごとの上書きは Merge によって派生コピーとして作られます。
type Config struct {
	InputDir  string `yaml:"inputdir" json:"inputdir"`
	OutputDir string `yaml:"outputdir" json:"outputdir"`
	SkillDir  string `yaml:"skilldir" json:"skilldir"`
	TestsDir  string `yaml:"testsdir" json:"testsdir"`

	Bypass   bool `yaml:"bypass" json:"bypass"`
	Regen    bool `yaml:"regen" json:"regen"`
	Keep     bool `yaml:"keep" json:"keep"`
	AVSTasks int  `yaml:"avstasks" json:"avstasks"`
	TTSTasks int  `yaml:"ttstasks" json:"ttstasks"`

	Synth        string `yaml:"synth" json:"synth"`
	Invocation   string `yaml:"invocation" json:"invocation"`
	SpeechPrefix string `yaml:"speechprefix" json:"speechprefix"`

	QueueURL      string `yaml:"queueurl" json:"queueurl"`
	QueueStream   string `yaml:"queuestream" json:"queuestream"`
	QueueSubject  string `yaml:"queuesubject" json:"queuesubject"`
	QueueConsumer string `yaml:"queueconsumer" json:"queueconsumer"`
	QueueWait     int    `yaml:"queuewait" json:"queuewait"` // 秒

	Email    string `yaml:"email" json:"email"`
	Password string `yaml:"password" json:"password"`
	ClientID string `yaml:"clientid" json:"clientid"`
	Secret   string `yaml:"secret" json:"secret"`
	DeviceID string `yaml:"deviceid" json:"deviceid"`
	Redirect string `yaml:"redirect" json:"redirect"`

	AuthURL      string  `yaml:"authurl" json:"authurl"`
	TokenURL     string  `yaml:"tokenurl" json:"tokenurl"`
	RecognizeURL string  `yaml:"recognizeurl" json:"recognizeurl"`
	AVSRate      float64 `yaml:"avsrate" json:"avsrate"` // 0 は無制限

	VoicevoxURL     string `yaml:"voicevoxurl" json:"voicevoxurl"`
	VoicevoxSpeaker string `yaml:"voicevoxspeaker" json:"voicevoxspeaker"`
	VoicevoxStyle   string `yaml:"voicevoxstyle" json:"voicevoxstyle"`

	AzureKey    string `yaml:"azurekey" json:"azurekey"`
	AzureRegion string `yaml:"azureregion" json:"azureregion"`
	AzureVoice  string `yaml:"azurevoice" json:"azurevoice"`

	LogLevel string `yaml:"loglevel" json:"loglevel"`
}

// ----------------------------------------------------------------------
// 派生値
// ----------------------------------------------------------------------

// QueueWaitDuration は結果キュー受信の待機時間を返します。
func (c Config) QueueWaitDuration() time.Duration {
	if c.QueueWait <= 0 {
		return DefaultQueueWait * time.Second
	}
	return time.Duration(c.QueueWait) * time.Second
}

// ExpandPaths は {skilldir} と {testsdir} のプレースホルダーを設定値で置換します。
func (c Config) ExpandPaths(s string) string {
	return strings.NewReplacer(
		PlaceholderSkillDir, c.SkillDir,
		PlaceholderTestsDir, c.TestsDir,
	).Replace(s)
}

// SpokenText は合成に渡す発話全体（ウェイクワード + 呼び出し名 + 発話）を組み立てます。
func (c Config) SpokenText(text string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.SpeechPrefix, c.Invocation, text} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Normalize はタスク数などの下限を補正したコピーを返します。
func (c Config) Normalize() Config {
	if c.AVSTasks < 1 {
		c.AVSTasks = 1
	}
	if c.TTSTasks < 1 {
		c.TTSTasks = 1
	}
	return c
}

// Validate は認識処理に必要な設定が揃っているか確認します。
func (c Config) Validate() error {
	required := []struct{ name, value string }{
		{"clientid", c.ClientID},
		{"secret", c.Secret},
		{"redirect", c.Redirect},
		{"authurl", c.AuthURL},
		{"tokenurl", c.TokenURL},
		{"recognizeurl", c.RecognizeURL},
	}
	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("認識サービスの設定が不足しています: %s", strings.Join(missing, ", "))
	}
	return nil
}
