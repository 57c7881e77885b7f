package correlator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-skilltest/pkg/config"
	"github.com/shouni/go-skilltest/pkg/queue"
	"github.com/shouni/go-skilltest/pkg/template"
)

const validMessage = `{"event":{"request":{"type":"IntentRequest"}},"response":{"outputSpeech":{"text":"ok"}}}`

func testCase() template.Case {
	return template.Case{
		Test:     "test_volume",
		Template: "set volume to {num}",
		Resolved: "set volume to 1",
		CacheKey: "set_volume_to_1",
		Bindings: map[string]string{"{num}": "1"},
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	cfg.TestsDir = t.TempDir()
	cfg.QueueWait = 1
	return cfg
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("sh が必要です")
	}
}

func TestCorrelate_NoMessage(t *testing.T) {
	q := queue.NewMemory()
	c := New(q, testConfig(t), nil)

	status, err := c.Correlate(context.Background(), "", testCase())
	require.NoError(t, err)
	assert.Equal(t, NoMessage, status)
}

func TestCorrelate_MalformedAndIncomplete(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Status
	}{
		{"JSONでない", "not json", Malformed},
		{"responseなし", `{"event":{}}`, Incomplete},
		{"eventなし", `{"response":{}}`, Incomplete},
		{"正常", validMessage, Recorded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := queue.NewMemory()
			q.Publish([]byte(tt.body))
			c := New(q, testConfig(t), nil)

			status, err := c.Correlate(context.Background(), "", testCase())
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
			assert.Equal(t, 1, q.Deleted(), "受信したメッセージは解析前に削除される")
		})
	}
}

func TestCorrelate_KeepWritesIndentedRecord(t *testing.T) {
	cfg := testConfig(t)
	cfg.Keep = true
	q := queue.NewMemory()
	q.Publish([]byte(validMessage))

	status, err := New(q, cfg, nil).Correlate(context.Background(), "", testCase())
	require.NoError(t, err)
	assert.Equal(t, Recorded, status)

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "set_volume_to_1.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n    \"event\": {")
	assert.JSONEq(t, validMessage, string(data))
}

func TestCorrelate_VerifierReceivesPayload(t *testing.T) {
	skipWithoutShell(t)
	cfg := testConfig(t)
	q := queue.NewMemory()
	q.Publish([]byte(validMessage))

	var out bytes.Buffer
	verifier := `cat > {testsdir}/payload.json; printf 'checked\nall good\n' >&2`
	status, err := New(q, cfg, &out).Correlate(context.Background(), verifier, testCase())
	require.NoError(t, err)
	assert.Equal(t, Verified, status)

	data, err := os.ReadFile(filepath.Join(cfg.TestsDir, "payload.json"))
	require.NoError(t, err)

	var got struct {
		TestName  string            `json:"testname"`
		Utterance string            `json:"utterance"`
		Resolved  string            `json:"resolved"`
		Types     map[string]string `json:"types"`
		Message   map[string]any    `json:"message"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "test_volume", got.TestName)
	assert.Equal(t, "set volume to {num}", got.Utterance)
	assert.Equal(t, "set volume to 1", got.Resolved)
	if diff := cmp.Diff(map[string]string{"num": "1"}, got.Types); diff != "" {
		t.Errorf("types mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, got.Message, "event")
	assert.Contains(t, got.Message, "response")

	want := "Unittest:    checked\n" + "             all good\n"
	assert.Equal(t, want, out.String())
}

func TestCorrelate_VerifierFailure(t *testing.T) {
	skipWithoutShell(t)
	q := queue.NewMemory()
	q.Publish([]byte(validMessage))

	var out bytes.Buffer
	status, err := New(q, testConfig(t), &out).Correlate(context.Background(), "echo broken >&2; exit 3", testCase())
	assert.Equal(t, VerifierFailed, status)

	var verr *ErrVerifier
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "set volume to 1", verr.Resolved)
	assert.Equal(t, "Unittest:    broken\n", out.String())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "verified", Verified.String())
	assert.Equal(t, "Status(42)", Status(42).String())
}
