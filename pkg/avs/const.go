package avs

import "time"

const (
	DefaultTimeout = 60 * time.Second

	// maxRedirects はログインフローで手動追跡するリダイレクトの上限です。
	maxRedirects = 10

	scopeAlexaAll      = "alexa:all"
	deviceSerialNumber = "001"

	contentTypeJSON = "application/json; charset=UTF-8"
	contentTypeMPEG = "audio/mpeg"
)

// 既知のユーザーエージェントでないと session-id クッキーが発行されない
var defaultHeaders = map[string]string{
	"Accept-Language": "en,*;q=0.1",
	"User-Agent":      "Links (2.14; CYGWIN_NT-10.0 2.6.1(0.305/5/3) x86_64; GNU C 5.4; text)",
}

// ----------------------------------------------------------------------
// ログインフローの各ステップ
// ----------------------------------------------------------------------

// loginStep はログインページ上の1つのフォームと、その送信方法を表します。
// フォームが見つからないステップはスキップされます。
type loginStep struct {
	form   string
	method string
	// fields は hidden フィールドに追加する値を返します。
	fields func(s *Session) map[string]string
	// signIn はサインインのステップで、送信前に ap-fid クッキーを設定します。
	signIn bool
}

var loginSteps = []loginStep{
	{
		form:   "acknowledgement-form",
		method: "GET",
		fields: func(*Session) map[string]string {
			return map[string]string{"acknowledgementApproved": ""}
		},
	},
	{
		form:   "signIn",
		method: "POST",
		fields: func(s *Session) map[string]string {
			return map[string]string{"email": s.cfg.Email, "password": s.cfg.Password}
		},
		signIn: true,
	},
	{
		form:   "consent-form",
		method: "GET",
		fields: func(*Session) map[string]string {
			return map[string]string{"consentApproved": ""}
		},
	},
}
