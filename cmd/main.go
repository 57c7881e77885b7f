package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shouni/go-skilltest/pkg/avs"
	"github.com/shouni/go-skilltest/pkg/config"
	"github.com/shouni/go-skilltest/pkg/pipeline"
	"github.com/shouni/go-skilltest/pkg/queue"
	"github.com/shouni/go-skilltest/pkg/synth"
)

// ----------------------------------------------------------------------
// フラグ
// ----------------------------------------------------------------------

var (
	configPath  string
	writeConfig string
)

// overrideFlags は設定ファイルの値を上書きするフラグです。名前は設定キーと同じです。
var overrideFlags = []string{
	"inputdir", "outputdir", "skilldir", "testsdir",
	"avstasks", "ttstasks", "bypass", "keep", "regen",
	"invocation", "queueurl", "synth", "loglevel",
}

var rootCmd = &cobra.Command{
	Use:   "skilltest [file...]",
	Short: "音声アシスタントのスキルを発話テンプレートから自動テストします",
	Long: `テスト仕様のテンプレートを展開して発話を合成し、音声認識サービスへ送ります。
結果キューが設定されている場合、スキルが書き込んだ結果を検証コマンドに渡します。

ファイルを指定しない場合は testsdir 内の test_* を全て実行します。`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&configPath, "config", "C", "", "設定ファイルのパス")
	f.StringVarP(&writeConfig, "writeconfig", "w", "", "既定の設定ファイルを書き出すパス")

	f.StringP("inputdir", "I", "", "音声入力ファイルのディレクトリ")
	f.StringP("outputdir", "O", "", "音声出力ファイルのディレクトリ")
	f.StringP("skilldir", "S", "", "スキルのディレクトリ")
	f.StringP("testsdir", "T", "", "テスト仕様のディレクトリ")
	f.IntP("avstasks", "a", 1, "認識リクエストの並列数")
	f.IntP("ttstasks", "t", 1, "音声合成の並列数")
	f.BoolP("bypass", "b", false, "認識サービスを呼ばずに展開結果だけを表示する")
	f.BoolP("keep", "k", false, "発話ごとの event/response を保存する")
	f.BoolP("regen", "r", false, "音声入力ファイルを再生成する")
	f.StringP("invocation", "i", "", "スキルの呼び出し名")
	f.StringP("queueurl", "q", "", "結果キュー (NATS) の URL")
	f.StringP("synth", "s", "", "音声合成バックエンド (espeak / say / voicevox / azure)")
	f.String("loglevel", "", "ログレベル (debug / info / warn / error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("skilltest が失敗しました", "error", err)
		os.Exit(1)
	}
}

// ----------------------------------------------------------------------
// 実行
// ----------------------------------------------------------------------

func run(cmd *cobra.Command, args []string) error {
	if writeConfig != "" {
		if err := config.WriteSample(writeConfig); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "設定ファイルを書き出しました: %s\n", writeConfig)
		return nil
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []pipeline.Option{
		pipeline.WithReport(pipeline.NewReport(cmd.OutOrStdout())),
		pipeline.WithSynthFactory(newSynth),
		pipeline.WithQueueFactory(newQueue),
	}

	// bypass の場合は合成・認識・キューへの接続を行わない
	var (
		s   pipeline.Synthesizer
		rec pipeline.Recognizer
	)
	if !cfg.Bypass {
		if s, err = newSynth(ctx, cfg); err != nil {
			return err
		}
		session, err := avs.NewSession(cfg)
		if err != nil {
			return err
		}
		rec = session

		if cfg.QueueURL != "" {
			q, err := newQueue(ctx, cfg)
			if err != nil {
				return err
			}
			defer q.Close()
			opts = append(opts, pipeline.WithQueue(q))
		}
	}

	runner := pipeline.New(cfg, s, rec, opts...)
	defer func() {
		if err := runner.Close(); err != nil {
			slog.Warn("結果キューのクローズに失敗しました", "error", err)
		}
	}()
	slog.Info("テストを開始します", "run_id", runner.RunID(), "specs", len(args), "synth", cfg.Synth)

	if err := runner.Run(ctx, args); err != nil {
		return fmt.Errorf("テストの実行に失敗しました: %w", err)
	}
	return nil
}

// loadConfig は設定ファイルを読み込み、明示的に指定されたフラグで上書きします。
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}

	overrides := make(map[string]any)
	for _, name := range overrideFlags {
		if fl := cmd.Flags().Lookup(name); fl != nil && fl.Changed {
			overrides[name] = fl.Value.String()
		}
	}
	return cfg.Merge(overrides)
}

func newSynth(ctx context.Context, cfg config.Config) (pipeline.Synthesizer, error) {
	s, err := synth.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newQueue(ctx context.Context, cfg config.Config) (queue.Queue, error) {
	q, err := queue.NewJetStream(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func setupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	})))
}
