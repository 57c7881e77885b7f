package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shouni/go-skilltest/pkg/audio"
	"github.com/shouni/go-skilltest/pkg/config"
	"github.com/shouni/go-skilltest/pkg/correlator"
	"github.com/shouni/go-skilltest/pkg/queue"
	"github.com/shouni/go-skilltest/pkg/source"
	"github.com/shouni/go-skilltest/pkg/template"
	"github.com/shouni/go-skilltest/pkg/testspec"
)

const (
	StageSetup     = "setup"
	StageSynth     = "synthesize"
	StageRecognize = "recognize"
	StageCleanup   = "cleanup"

	setupPrefix   = "SETUP_"
	cleanupPrefix = "CLEANUP_"

	inputExt  = ".wav"
	outputExt = ".mp3"
)

// Synthesizer は発話テキストを PCM 音声に変換します。synth.New が返す実装を想定しています。
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*audio.PCM, error)
}

// Recognizer は音声を認識サービスへ送り、応答音声を返します。*avs.Session が実装します。
type Recognizer interface {
	Recognize(ctx context.Context, l16 []byte) ([]byte, error)
}

// ----------------------------------------------------------------------
// Runner の構築 (Functional Options Pattern)
// ----------------------------------------------------------------------

// Runner はテスト仕様ごとに 展開 → setup → 合成 → 認識 → cleanup を実行します。
type Runner struct {
	base   config.Config
	synth  Synthesizer
	rec    Recognizer
	queue  queue.Queue
	report *Report

	// newSynth はテスト仕様が synth や話者を上書きした場合にバックエンドを作ります。
	newSynth SynthFactory
	synthMu  sync.Mutex
	synths   map[string]Synthesizer

	// newQueue はテスト仕様が queueurl を上書きした場合にキューへ接続します。
	newQueue QueueFactory
	queueMu  sync.Mutex
	queues   map[string]queue.Queue

	resolverOpts []source.Option
	runID        string
	log          *slog.Logger
}

// SynthFactory は設定からバックエンドを組み立てる関数です。
type SynthFactory func(ctx context.Context, cfg config.Config) (Synthesizer, error)

// QueueFactory は cfg.QueueURL の結果キューへ接続する関数です。
type QueueFactory func(ctx context.Context, cfg config.Config) (queue.Queue, error)

type Option func(*Runner)

// WithQueue は結果の相関に使うキューを設定します。未設定の場合、相関は無効になります。
func WithQueue(q queue.Queue) Option {
	return func(r *Runner) { r.queue = q }
}

func WithReport(rep *Report) Option {
	return func(r *Runner) {
		if rep != nil {
			r.report = rep
		}
	}
}

// WithSynthFactory はテスト仕様ごとの synth 上書きに使うファクトリを設定します。
// 未設定の場合、上書きは無視され New に渡したバックエンドが使われます。
func WithSynthFactory(f SynthFactory) Option {
	return func(r *Runner) { r.newSynth = f }
}

// WithQueueFactory はテスト仕様ごとの queueurl 上書きに使うファクトリを設定します。
// 作成したキューは Close で閉じられます。
func WithQueueFactory(f QueueFactory) Option {
	return func(r *Runner) { r.newQueue = f }
}

// WithResolverOptions は値ソースの解決に追加のオプションを渡します (乱数源の固定など)。
func WithResolverOptions(opts ...source.Option) Option {
	return func(r *Runner) { r.resolverOpts = append(r.resolverOpts, opts...) }
}

func New(base config.Config, s Synthesizer, rec Recognizer, opts ...Option) *Runner {
	id := uuid.NewString()
	r := &Runner{
		base:   base,
		synth:  s,
		rec:    rec,
		report: NewReport(os.Stdout),
		synths: make(map[string]Synthesizer),
		queues: make(map[string]queue.Queue),
		runID:  id,
		log:    slog.Default().With("run_id", id),
	}
	if s != nil {
		r.synths[synthKey(base)] = s
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunID は実行ごとに割り当てられる識別子です。
func (r *Runner) RunID() string { return r.runID }

// Close は QueueFactory で作成したキューを閉じます。WithQueue で渡したキューは閉じません。
func (r *Runner) Close() error {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()

	var errs []error
	for url, q := range r.queues {
		if err := q.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
		}
		delete(r.queues, url)
	}
	return errors.Join(errs...)
}

// ----------------------------------------------------------------------
// メイン処理
// ----------------------------------------------------------------------

// Run は names のテスト仕様を順に実行します。names が空の場合は testsdir から探索します。
// あるテスト仕様のエラーは他のテスト仕様の実行を止めません。全てのエラーをまとめて返します。
func (r *Runner) Run(ctx context.Context, names []string) error {
	discovered := len(names) == 0
	if discovered {
		found, err := testspec.Discover(r.base.TestsDir)
		if err != nil {
			return err
		}
		names = found
	}

	var errs []error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		var err error
		if discovered {
			name = filepath.Base(name)
			err = r.runSpec(ctx, name, filepath.Join(r.base.TestsDir, name))
		} else {
			var path string
			// 検証コマンドに渡すテスト名は指定された名前のまま
			if path, err = testspec.Locate(name, r.base.TestsDir); err == nil {
				err = r.runSpec(ctx, name, path)
			}
		}
		if err != nil {
			r.report.Error(name, err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// RunSpec は1件のテスト仕様を実行します。設定の上書きはこの呼び出しの中だけで有効です。
func (r *Runner) RunSpec(ctx context.Context, path string) error {
	return r.runSpec(ctx, filepath.Base(path), path)
}

// runSpec は name をテスト名 (検証コマンドの testname) として path のテスト仕様を実行します。
func (r *Runner) runSpec(ctx context.Context, name, path string) error {
	start := time.Now()
	spec, err := testspec.Load(path)
	if err != nil {
		return err
	}
	spec.Name = name
	cfg, err := r.base.Merge(spec.Config)
	if err != nil {
		return err
	}
	cfg = cfg.Normalize()
	log := r.log.With("test", spec.Name)

	opts := append([]source.Option{source.WithExpander(cfg.ExpandPaths)}, r.resolverOpts...)
	resolver := source.NewResolver(opts...)
	cases, err := spec.Expand(ctx, resolver)
	if err != nil {
		return err
	}

	r.report.Section("Processing " + spec.Name)
	for _, c := range cases {
		r.report.Printf("%s", c.Resolved)
	}
	if cfg.Bypass {
		return nil
	}

	var corr *correlator.Correlator
	if spec.HasVerifier() || cfg.Keep {
		q, err := r.queueFor(ctx, cfg)
		if err != nil {
			return fmt.Errorf("結果キューへの接続に失敗しました: %w", err)
		}
		if q == nil {
			log.WarnContext(ctx, "結果キューが設定されていないため、結果の相関を無効にします", "queueurl", cfg.QueueURL)
		} else {
			// 相関IDがないため、認識は直列でなければならない
			cfg.AVSTasks = 1
			if _, err := queue.Drain(ctx, q); err != nil {
				return fmt.Errorf("結果キューの初期化に失敗しました: %w", err)
			}
			corr = correlator.New(q, cfg, r.report)
		}
	}

	if err := r.runActions(ctx, cfg, resolver, StageSetup, setupPrefix, spec.Setup); err != nil {
		return err
	}

	r.report.Section("Generating voice input files")
	if err := runStage(ctx, StageSynth, cfg.TTSTasks, r.synthTasks(cfg, cases)); err != nil {
		return err
	}

	r.report.Section("Processing voice input files")
	if err := runStage(ctx, StageRecognize, cfg.AVSTasks, r.recognizeTasks(cfg, cases, spec.Verifier, corr)); err != nil {
		return err
	}

	if err := r.runActions(ctx, cfg, resolver, StageCleanup, cleanupPrefix, spec.Cleanup); err != nil {
		return err
	}

	log.InfoContext(ctx, "テスト仕様の実行が完了しました", "cases", len(cases), "elapsed", time.Since(start))
	return nil
}

// runActions は setup / cleanup の発話を1件ずつ合成してから認識します。
func (r *Runner) runActions(ctx context.Context, cfg config.Config, resolver *source.Resolver, stage, prefix string, ds []source.Descriptor) error {
	actions, err := testspec.Actions(ctx, resolver, ds)
	if err != nil {
		return err
	}
	if len(actions) == 0 {
		return nil
	}

	if stage == StageSetup {
		r.report.Section("Performing setup")
	} else {
		r.report.Section("Performing cleanup")
	}

	tasks := make([]task, 0, len(actions))
	for _, text := range actions {
		key := prefix + template.CacheKey(text)
		tasks = append(tasks, task{label: text, run: func(ctx context.Context) error {
			r.report.Printf("Action: %s", text)
			if err := r.synthesize(ctx, cfg, key, text); err != nil {
				return err
			}
			return r.recognize(ctx, cfg, key, text)
		}})
	}
	return runStage(ctx, stage, 1, tasks)
}

// synthTasks はキャッシュにない発話の合成タスクを作ります。同じキーは1回だけ合成します。
func (r *Runner) synthTasks(cfg config.Config, cases []template.Case) []task {
	scheduled := make(map[string]bool, len(cases))
	var tasks []task
	for _, c := range cases {
		if scheduled[c.CacheKey] {
			continue
		}
		scheduled[c.CacheKey] = true

		if !cfg.Regen && audio.IsCachedWAV(inputPath(cfg, c.CacheKey)) {
			r.log.Debug("キャッシュ済みの音声を再利用します", "key", c.CacheKey)
			continue
		}
		tasks = append(tasks, task{label: c.Resolved, run: func(ctx context.Context) error {
			r.report.Printf("Generating: %s", c.Resolved)
			return r.synthesize(ctx, cfg, c.CacheKey, c.Resolved)
		}})
	}
	return tasks
}

// recognizeTasks は全ケースの認識タスクを作ります。corr が nil でなければ認識ごとに結果を相関します。
func (r *Runner) recognizeTasks(cfg config.Config, cases []template.Case, verifier string, corr *correlator.Correlator) []task {
	tasks := make([]task, 0, len(cases))
	for _, c := range cases {
		tasks = append(tasks, task{label: c.Resolved, run: func(ctx context.Context) error {
			r.report.Printf("Recognizing: %s", c.Resolved)
			if err := r.recognize(ctx, cfg, c.CacheKey, c.Resolved); err != nil {
				return err
			}
			if corr == nil {
				return nil
			}
			status, err := corr.Correlate(ctx, verifier, c)
			var verr *correlator.ErrVerifier
			if errors.As(err, &verr) {
				r.report.Error(c.Resolved, err)
				return nil
			}
			if err != nil {
				return err
			}
			r.log.DebugContext(ctx, "結果を相関しました", "resolved", c.Resolved, "status", status)
			return nil
		}})
	}
	return tasks
}

// synthKey はバックエンドの使い回しに使うキーです。音声の選択に関わる設定を全て含めます。
func synthKey(cfg config.Config) string {
	return strings.Join([]string{cfg.Synth, cfg.VoicevoxSpeaker, cfg.VoicevoxStyle, cfg.AzureVoice}, "\x00")
}

// synthFor は cfg のバックエンドと話者に対応する Synthesizer を返します。作成したものは実行中使い回します。
func (r *Runner) synthFor(ctx context.Context, cfg config.Config) (Synthesizer, error) {
	r.synthMu.Lock()
	defer r.synthMu.Unlock()

	key := synthKey(cfg)
	if s, ok := r.synths[key]; ok {
		return s, nil
	}
	if r.newSynth == nil {
		if r.synth == nil {
			return nil, fmt.Errorf("音声合成バックエンドが設定されていません (%s)", cfg.Synth)
		}
		r.log.WarnContext(ctx, "synth の上書きは無視されます", "synth", cfg.Synth, "voice", cfg.AzureVoice, "speaker", cfg.VoicevoxSpeaker)
		return r.synth, nil
	}
	s, err := r.newSynth(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r.synths[key] = s
	return s, nil
}

// queueFor は cfg.QueueURL の結果キューを返します。基本設定と同じ URL なら WithQueue のキューを使います。
// キューが使えない場合は nil を返します。
func (r *Runner) queueFor(ctx context.Context, cfg config.Config) (queue.Queue, error) {
	if cfg.QueueURL == r.base.QueueURL {
		return r.queue, nil
	}
	if cfg.QueueURL == "" {
		return nil, nil
	}

	r.queueMu.Lock()
	defer r.queueMu.Unlock()

	if q, ok := r.queues[cfg.QueueURL]; ok {
		return q, nil
	}
	if r.newQueue == nil {
		r.log.WarnContext(ctx, "queueurl の上書きに対応するキューを作成できません", "queueurl", cfg.QueueURL)
		return nil, nil
	}
	q, err := r.newQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r.queues[cfg.QueueURL] = q
	return q, nil
}

func (r *Runner) synthesize(ctx context.Context, cfg config.Config, key, text string) error {
	s, err := r.synthFor(ctx, cfg)
	if err != nil {
		return &ErrSynthesis{Resolved: text, WrappedErr: err}
	}
	pcm, err := s.Synthesize(ctx, cfg.SpokenText(text))
	if err != nil {
		return &ErrSynthesis{Resolved: text, WrappedErr: err}
	}
	if err := audio.WriteWAV(inputPath(cfg, key), pcm); err != nil {
		return &ErrSynthesis{Resolved: text, WrappedErr: err}
	}
	return nil
}

func (r *Runner) recognize(ctx context.Context, cfg config.Config, key, text string) error {
	if r.rec == nil {
		return &ErrRecognition{Resolved: text, WrappedErr: errors.New("認識サービスが設定されていません")}
	}
	l16, err := audio.ReadL16(inputPath(cfg, key))
	if err != nil {
		return &ErrRecognition{Resolved: text, WrappedErr: err}
	}
	reply, err := r.rec.Recognize(ctx, l16)
	if err != nil {
		return &ErrRecognition{Resolved: text, WrappedErr: err}
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return &ErrRecognition{Resolved: text, WrappedErr: err}
	}
	if err := os.WriteFile(outputPath(cfg, key), reply, 0644); err != nil {
		return &ErrRecognition{Resolved: text, WrappedErr: err}
	}
	return nil
}

func inputPath(cfg config.Config, key string) string {
	return filepath.Join(cfg.InputDir, key+inputExt)
}

func outputPath(cfg config.Config, key string) string {
	return filepath.Join(cfg.OutputDir, key+outputExt)
}
