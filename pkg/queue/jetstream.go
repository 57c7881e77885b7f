package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/shouni/go-skilltest/pkg/config"
)

// JetStream は NATS JetStream のワークキューストリームを結果キューとして使う実装です。
// 明示的 ACK の durable プルコンシューマーで1件ずつ取り出します。
type JetStream struct {
	nc   *nats.Conn
	js   jetstream.JetStream
	cons jetstream.Consumer

	subject string
}

// NewJetStream は NATS に接続し、ストリームとコンシューマーを作成 (または更新) します。
func NewJetStream(ctx context.Context, cfg config.Config) (*JetStream, error) {
	nc, err := nats.Connect(cfg.QueueURL, nats.Name("skilltest"))
	if err != nil {
		return nil, fmt.Errorf("NATS への接続に失敗しました (%s): %w", cfg.QueueURL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, err
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.QueueStream,
		Retention: jetstream.WorkQueuePolicy,
		Subjects:  []string{cfg.QueueSubject},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("結果ストリームの作成に失敗しました (%s): %w", cfg.QueueStream, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       cfg.QueueConsumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: cfg.QueueSubject,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("結果コンシューマーの作成に失敗しました (%s): %w", cfg.QueueConsumer, err)
	}

	slog.Info("結果キューに接続しました",
		"version", nc.ConnectedServerVersion(),
		"address", nc.ConnectedAddr(),
		"stream", cfg.QueueStream,
		"subject", cfg.QueueSubject)

	return &JetStream{nc: nc, js: js, cons: cons, subject: cfg.QueueSubject}, nil
}

func (q *JetStream) Receive(ctx context.Context, wait time.Duration) (*Message, error) {
	batch, err := q.cons.Fetch(1, jetstream.FetchMaxWait(wait))
	if err != nil {
		if isNoMessage(err) {
			return nil, nil
		}
		return nil, err
	}

	for msg := range batch.Messages() {
		id := ""
		if meta, err := msg.Metadata(); err == nil {
			id = strconv.FormatUint(meta.Sequence.Stream, 10)
		}
		// メッセージバッファは再利用されるためコピーする
		body := make([]byte, len(msg.Data()))
		copy(body, msg.Data())

		return NewMessage(id, body, msg.DoubleAck), nil
	}

	if err := batch.Error(); err != nil && !isNoMessage(err) {
		return nil, err
	}
	return nil, nil
}

func (q *JetStream) Delete(ctx context.Context, msg *Message) error {
	if msg == nil || msg.ack == nil {
		return nil
	}
	if err := msg.ack(ctx); err != nil {
		return fmt.Errorf("結果メッセージの削除に失敗しました (id=%s): %w", msg.ID, err)
	}
	return nil
}

// Publish は結果メッセージを1件書き込みます。スキル側の送信処理の確認に使います。
func (q *JetStream) Publish(ctx context.Context, body []byte) error {
	_, err := q.js.Publish(ctx, q.subject, body)
	return err
}

func (q *JetStream) Close() error {
	q.nc.Close()
	return nil
}

func isNoMessage(err error) bool {
	return errors.Is(err, jetstream.ErrNoMessages) || errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
