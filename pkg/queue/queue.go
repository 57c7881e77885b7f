package queue

import (
	"context"
	"log/slog"
	"time"
)

// DrainWait は Drain が1回の受信で待機する時間です。
const DrainWait = time.Second

// Message は結果キューから受信した1件のメッセージです。
type Message struct {
	ID   string
	Body []byte

	ack func(ctx context.Context) error
}

// NewMessage は ack 関数付きのメッセージを作ります。Queue の実装から利用します。
func NewMessage(id string, body []byte, ack func(ctx context.Context) error) *Message {
	return &Message{ID: id, Body: body, ack: ack}
}

// Queue はスキルが書き込んだ認識結果を受け取るキューです。
// メッセージには相関IDがないため、受信順 (FIFO) がそのまま発話との対応になります。
type Queue interface {
	// Receive は最大 wait だけ待って1件受信します。メッセージがない場合は nil, nil を返します。
	Receive(ctx context.Context, wait time.Duration) (*Message, error)
	// Delete は受信したメッセージをキューから取り除きます (確認応答)。
	Delete(ctx context.Context, msg *Message) error
	Close() error
}

// Drain は前回の実行で残ったメッセージを空になるまで取り除き、削除した件数を返します。
func Drain(ctx context.Context, q Queue) (int, error) {
	n := 0
	for {
		msg, err := q.Receive(ctx, DrainWait)
		if err != nil {
			return n, err
		}
		if msg == nil {
			break
		}
		if err := q.Delete(ctx, msg); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		slog.InfoContext(ctx, "結果キューに残っていたメッセージを削除しました", "count", n)
	}
	return n, nil
}
