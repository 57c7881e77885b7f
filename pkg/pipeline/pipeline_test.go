package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shouni/go-skilltest/pkg/audio"
	"github.com/shouni/go-skilltest/pkg/config"
	"github.com/shouni/go-skilltest/pkg/queue"
	"github.com/shouni/go-skilltest/pkg/template"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ----------------------------------------------------------------------
// テスト用のフェイク
// ----------------------------------------------------------------------

type fakeSynth struct {
	mu     sync.Mutex
	texts  []string
	failOn string
}

func (f *fakeSynth) Synthesize(_ context.Context, text string) (*audio.PCM, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("engine down")
	}
	return &audio.PCM{SampleRate: 22050, Channels: 1, Samples: make([]int16, 2205)}, nil
}

func (f *fakeSynth) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeRecognizer struct {
	calls   atomic.Int32
	onCall  func()
	failErr error
}

func (f *fakeRecognizer) Recognize(_ context.Context, l16 []byte) ([]byte, error) {
	f.calls.Add(1)
	if f.failErr != nil {
		return nil, f.failErr
	}
	if len(l16) == 0 {
		return nil, errors.New("empty audio")
	}
	if f.onCall != nil {
		f.onCall()
	}
	return []byte("ID3 reply"), nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.InputDir = filepath.Join(root, "input")
	cfg.OutputDir = filepath.Join(root, "output")
	cfg.TestsDir = filepath.Join(root, "tests")
	cfg.SkillDir = filepath.Join(root, "skill")
	cfg.Invocation = "my skill"
	cfg.QueueWait = 1
	require.NoError(t, os.MkdirAll(cfg.TestsDir, 0755))
	return cfg
}

func writeSpec(t *testing.T, cfg config.Config, name, body string) string {
	t.Helper()
	path := filepath.Join(cfg.TestsDir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("sh が必要です")
	}
}

// ----------------------------------------------------------------------
// RunSpec
// ----------------------------------------------------------------------

func TestRunSpec_SynthesizesAndRecognizes(t *testing.T) {
	cfg := testConfig(t)
	path := writeSpec(t, cfg, "test_volume", `{
		"types": {"num": ["1", "2"]},
		"utterances": ["set volume to {num}"],
		"setup": ["stop"],
		"cleanup": ["reset"]
	}`)

	s := &fakeSynth{}
	rec := &fakeRecognizer{}
	var out bytes.Buffer
	r := New(cfg, s, rec, WithReport(NewReport(&out)))

	require.NoError(t, r.RunSpec(context.Background(), path))

	want := []string{
		"alexa ask my skill stop",
		"alexa ask my skill set volume to 1",
		"alexa ask my skill set volume to 2",
		"alexa ask my skill reset",
	}
	if diff := cmp.Diff(want, s.calls()); diff != "" {
		t.Errorf("synthesized texts mismatch (-want +got):\n%s", diff)
	}
	assert.EqualValues(t, 4, rec.calls.Load())

	for _, key := range []string{"SETUP_stop", "set_volume_to_1", "set_volume_to_2", "CLEANUP_reset"} {
		assert.True(t, audio.IsCachedWAV(filepath.Join(cfg.InputDir, key+".wav")), key)
		assert.FileExists(t, filepath.Join(cfg.OutputDir, key+".mp3"))
	}
	assert.Contains(t, out.String(), "Processing test_volume")
	assert.Contains(t, out.String(), "Recognizing: set volume to 2")
}

func TestRunSpec_CacheAndRegen(t *testing.T) {
	cfg := testConfig(t)
	path := writeSpec(t, cfg, "test_cache", `{"utterances": ["play music"]}`)

	s := &fakeSynth{}
	r := New(cfg, s, &fakeRecognizer{}, WithReport(NewReport(nil)))
	require.NoError(t, r.RunSpec(context.Background(), path))
	require.NoError(t, r.RunSpec(context.Background(), path))
	assert.Len(t, s.calls(), 1, "キャッシュ済みの音声は再合成しない")

	cfg.Regen = true
	r = New(cfg, s, &fakeRecognizer{}, WithReport(NewReport(nil)))
	require.NoError(t, r.RunSpec(context.Background(), path))
	assert.Len(t, s.calls(), 2)
}

func TestRunSpec_SharedCacheKeySynthesizedOnce(t *testing.T) {
	cfg := testConfig(t)
	path := writeSpec(t, cfg, "test_apostrophe", `{"utterances": ["dont stop", "don't stop"]}`)

	s := &fakeSynth{}
	rec := &fakeRecognizer{}
	r := New(cfg, s, rec, WithReport(NewReport(nil)))
	require.NoError(t, r.RunSpec(context.Background(), path))

	assert.Len(t, s.calls(), 1)
	assert.EqualValues(t, 2, rec.calls.Load(), "認識はケースごとに行う")
}

func TestRunSpec_Bypass(t *testing.T) {
	cfg := testConfig(t)
	path := writeSpec(t, cfg, "test_bypass", `{
		"types": {"color": ["red", "blue"]},
		"utterances": ["paint it {color}"],
		"config": {"bypass": true}
	}`)

	s := &fakeSynth{}
	rec := &fakeRecognizer{}
	var out bytes.Buffer
	r := New(cfg, s, rec, WithReport(NewReport(&out)))
	require.NoError(t, r.RunSpec(context.Background(), path))

	assert.Empty(t, s.calls())
	assert.Zero(t, rec.calls.Load())
	assert.Contains(t, out.String(), "paint it red\npaint it blue\n")
	assert.NoDirExists(t, cfg.InputDir)
}

func TestRunSpec_SynthesisFailureAbortsRemainingPhases(t *testing.T) {
	cfg := testConfig(t)
	path := writeSpec(t, cfg, "test_fail", `{"utterances": ["good one", "bad one"], "cleanup": ["reset"]}`)

	s := &fakeSynth{failOn: "bad"}
	rec := &fakeRecognizer{}
	r := New(cfg, s, rec, WithReport(NewReport(nil)))
	err := r.RunSpec(context.Background(), path)
	require.Error(t, err)

	var batch *ErrStageBatch
	require.True(t, errors.As(err, &batch))
	assert.Equal(t, StageSynth, batch.Stage)
	assert.Equal(t, 1, batch.TotalErrors)

	var serr *ErrSynthesis
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "bad one", serr.Resolved)

	assert.Zero(t, rec.calls.Load(), "合成に失敗したら認識と cleanup は実行しない")
}

func TestRunSpec_RecognitionFailure(t *testing.T) {
	cfg := testConfig(t)
	path := writeSpec(t, cfg, "test_rec", `{"utterances": ["one", "two"]}`)

	rec := &fakeRecognizer{failErr: errors.New("forbidden")}
	r := New(cfg, &fakeSynth{}, rec, WithReport(NewReport(nil)))
	err := r.RunSpec(context.Background(), path)

	var rerr *ErrRecognition
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "one", rerr.Resolved)
	assert.EqualValues(t, 1, rec.calls.Load(), "単一ワーカーでは失敗後のタスクは開始しない")
}

func TestRunSpec_CorrelatesWithVerifier(t *testing.T) {
	skipWithoutShell(t)
	cfg := testConfig(t)
	cfg.Keep = true
	path := writeSpec(t, cfg, "test_verify", `{
		"types": {"num": ["1", "2", "3"]},
		"utterances": ["set volume to {num}"],
		"config": {"avstasks": 4},
		"unittest": "cat >> {testsdir}/payloads.txt; echo >> {testsdir}/payloads.txt; echo checked >&2"
	}`)

	q := queue.NewMemory()
	q.Publish([]byte(`{"stale": true}`))

	var seq atomic.Int32
	rec := &fakeRecognizer{onCall: func() {
		n := seq.Add(1)
		q.Publish([]byte(fmt.Sprintf(`{"event":{"n":%d},"response":{}}`, n)))
	}}

	var out bytes.Buffer
	r := New(cfg, &fakeSynth{}, rec, WithQueue(q), WithReport(NewReport(&out)))
	require.NoError(t, r.RunSpec(context.Background(), path))

	data, err := os.ReadFile(filepath.Join(cfg.TestsDir, "payloads.txt"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	for i, line := range lines {
		assert.Contains(t, line, fmt.Sprintf(`"resolved":"set volume to %d"`, i+1))
		assert.Contains(t, line, fmt.Sprintf(`"n":%d`, i+1), "認識と結果メッセージは FIFO で対応する")
	}

	assert.FileExists(t, filepath.Join(cfg.OutputDir, "set_volume_to_3.txt"))
	assert.Equal(t, 3, strings.Count(out.String(), "Unittest:    checked"))
	assert.Equal(t, 4, q.Deleted(), "古いメッセージも削除される")
}

func TestRunSpec_VerifierFailureContinues(t *testing.T) {
	skipWithoutShell(t)
	cfg := testConfig(t)
	path := writeSpec(t, cfg, "test_verify_fail", `{
		"utterances": ["one", "two"],
		"unittest": "exit 1"
	}`)

	q := queue.NewMemory()
	rec := &fakeRecognizer{onCall: func() { q.Publish([]byte(`{"event": {}, "response": {}}`)) }}
	var out bytes.Buffer
	r := New(cfg, &fakeSynth{}, rec, WithQueue(q), WithReport(NewReport(&out)))

	require.NoError(t, r.RunSpec(context.Background(), path))
	assert.EqualValues(t, 2, rec.calls.Load())
	assert.Equal(t, 2, strings.Count(out.String(), "ERROR: "))
}

func TestRunSpec_CorrelationDisabledWithoutQueue(t *testing.T) {
	cfg := testConfig(t)
	path := writeSpec(t, cfg, "test_noqueue", `{"utterances": ["one"], "unittest": "false"}`)

	rec := &fakeRecognizer{}
	r := New(cfg, &fakeSynth{}, rec, WithReport(NewReport(nil)))
	require.NoError(t, r.RunSpec(context.Background(), path))
	assert.EqualValues(t, 1, rec.calls.Load())
}

// ----------------------------------------------------------------------
// Run
// ----------------------------------------------------------------------

func TestRun_DiscoversAndIsolatesSpecErrors(t *testing.T) {
	cfg := testConfig(t)
	writeSpec(t, cfg, "test_a_broken", `{"utterances": ["say {missing}"]}`)
	writeSpec(t, cfg, "test_b_ok", `{"utterances": ["hello"], "config": {"invocation": "other skill"}}`)
	writeSpec(t, cfg, "notes.txt", `not a spec`)

	s := &fakeSynth{}
	var out bytes.Buffer
	r := New(cfg, s, &fakeRecognizer{}, WithReport(NewReport(&out)))
	err := r.Run(context.Background(), nil)
	require.Error(t, err)

	var slotErr *template.ErrUnknownSlot
	assert.True(t, errors.As(err, &slotErr))
	assert.Equal(t, []string{"alexa ask other skill hello"}, s.calls())
	assert.Contains(t, out.String(), "ERROR: test_a_broken")
	assert.NotEmpty(t, r.RunID())
}

func TestRun_ConfigOverrideDoesNotLeak(t *testing.T) {
	cfg := testConfig(t)
	writeSpec(t, cfg, "test_1", `{"utterances": ["first"], "config": {"speechprefix": "computer"}}`)
	writeSpec(t, cfg, "test_2", `{"utterances": ["second"]}`)

	s := &fakeSynth{}
	r := New(cfg, s, &fakeRecognizer{}, WithReport(NewReport(nil)))
	require.NoError(t, r.Run(context.Background(), []string{"test_1", "test_2"}))

	assert.Equal(t, []string{"computer my skill first", "alexa ask my skill second"}, s.calls())
}

func TestRun_UnknownSpec(t *testing.T) {
	cfg := testConfig(t)
	r := New(cfg, &fakeSynth{}, &fakeRecognizer{}, WithReport(NewReport(nil)))
	err := r.Run(context.Background(), []string{"test_nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test_nope")
}

func TestRunSpec_SynthOverrideUsesFactory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Synth = "espeak"
	path := writeSpec(t, cfg, "test_override", `{"utterances": ["one", "two"], "config": {"synth": "voicevox"}}`)

	base := &fakeSynth{}
	other := &fakeSynth{}
	var built atomic.Int32
	factory := func(_ context.Context, c config.Config) (Synthesizer, error) {
		built.Add(1)
		assert.Equal(t, "voicevox", c.Synth)
		return other, nil
	}

	r := New(cfg, base, &fakeRecognizer{}, WithSynthFactory(factory), WithReport(NewReport(nil)))
	require.NoError(t, r.RunSpec(context.Background(), path))

	assert.Empty(t, base.calls())
	assert.Len(t, other.calls(), 2)
	assert.EqualValues(t, 1, built.Load(), "バックエンドは1回だけ作る")
}

// closeCountingQueue は Close の呼び出し回数を数えます。
type closeCountingQueue struct {
	*queue.Memory
	closed atomic.Int32
}

func (q *closeCountingQueue) Close() error {
	q.closed.Add(1)
	return q.Memory.Close()
}

func TestRun_VoiceAndQueueOverridesApplyPerSpec(t *testing.T) {
	skipWithoutShell(t)
	cfg := testConfig(t)
	cfg.Synth = "voicevox"
	body := `{
		"utterances": [%q],
		"config": {"voicevoxstyle": "ささやき", "azurevoice": "en-US-X", "queueurl": "nats://example:4222"},
		"unittest": "cat >> {testsdir}/payloads.txt; echo >> {testsdir}/payloads.txt"
	}`
	writeSpec(t, cfg, "test_1", fmt.Sprintf(body, "hello"))
	writeSpec(t, cfg, "test_2", fmt.Sprintf(body, "goodbye"))
	writeSpec(t, cfg, "test_3", `{"utterances": ["plain"]}`)

	base := &fakeSynth{}
	whisper := &fakeSynth{}
	var synthBuilt atomic.Int32
	synthFactory := func(_ context.Context, c config.Config) (Synthesizer, error) {
		synthBuilt.Add(1)
		assert.Equal(t, "ささやき", c.VoicevoxStyle)
		assert.Equal(t, "en-US-X", c.AzureVoice)
		return whisper, nil
	}

	q := &closeCountingQueue{Memory: queue.NewMemory()}
	var urls []string
	queueFactory := func(_ context.Context, c config.Config) (queue.Queue, error) {
		urls = append(urls, c.QueueURL)
		return q, nil
	}
	rec := &fakeRecognizer{onCall: func() { q.Publish([]byte(`{"event": {}, "response": {}}`)) }}

	r := New(cfg, base, rec,
		WithSynthFactory(synthFactory),
		WithQueueFactory(queueFactory),
		WithReport(NewReport(nil)))
	require.NoError(t, r.Run(context.Background(), nil))

	assert.EqualValues(t, 1, synthBuilt.Load(), "同じ話者の組み合わせではバックエンドを使い回す")
	assert.Len(t, whisper.calls(), 2)
	assert.Equal(t, []string{"alexa ask my skill plain"}, base.calls())

	assert.Equal(t, []string{"nats://example:4222"}, urls, "同じ URL には1回だけ接続する")
	data, err := os.ReadFile(filepath.Join(cfg.TestsDir, "payloads.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"resolved":"hello"`)
	assert.Contains(t, string(data), `"resolved":"goodbye"`)
	assert.Equal(t, 2, q.Deleted())

	require.NoError(t, r.Close())
	assert.EqualValues(t, 1, q.closed.Load())
	require.NoError(t, r.Close())
	assert.EqualValues(t, 1, q.closed.Load(), "閉じたキューは再度閉じない")
}

func TestRunSpec_QueueOverrideWithoutFactoryDisablesCorrelation(t *testing.T) {
	cfg := testConfig(t)
	path := writeSpec(t, cfg, "test_elsewhere", `{
		"utterances": ["one"],
		"config": {"queueurl": "nats://elsewhere:4222"},
		"unittest": "false"
	}`)

	q := queue.NewMemory()
	q.Publish([]byte(`{"event": {}, "response": {}}`))
	rec := &fakeRecognizer{}
	r := New(cfg, &fakeSynth{}, rec, WithQueue(q), WithReport(NewReport(nil)))

	require.NoError(t, r.RunSpec(context.Background(), path))
	assert.EqualValues(t, 1, rec.calls.Load())
	assert.Equal(t, 1, q.Len(), "別の URL を指定したテストは既定のキューを読まない")
}

func TestRun_TestNameAsGiven(t *testing.T) {
	skipWithoutShell(t)
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.TestsDir, "sub"), 0755))
	writeSpec(t, cfg, filepath.Join("sub", "test_x"), `{
		"utterances": ["hello"],
		"unittest": "cat > {testsdir}/payload.json"
	}`)

	q := queue.NewMemory()
	rec := &fakeRecognizer{onCall: func() { q.Publish([]byte(`{"event": {}, "response": {}}`)) }}
	var out bytes.Buffer
	r := New(cfg, &fakeSynth{}, rec, WithQueue(q), WithReport(NewReport(&out)))

	require.NoError(t, r.Run(context.Background(), []string{"sub/test_x"}))

	assert.Contains(t, out.String(), "Processing sub/test_x")
	data, err := os.ReadFile(filepath.Join(cfg.TestsDir, "payload.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"testname":"sub/test_x"`)
}
