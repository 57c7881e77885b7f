package queue

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Memory はプロセス内のキューです。ローカル実行やテストで JetStream の代わりに使います。
type Memory struct {
	mu      sync.Mutex
	seq     int
	pending []*Message
	deleted map[string]bool
	notify  chan struct{}
}

func NewMemory() *Memory {
	return &Memory{
		deleted: make(map[string]bool),
		notify:  make(chan struct{}, 1),
	}
}

// Publish はメッセージを末尾に追加します。
func (m *Memory) Publish(body []byte) {
	m.mu.Lock()
	m.seq++
	id := strconv.Itoa(m.seq)
	m.pending = append(m.pending, &Message{ID: id, Body: body})
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *Memory) Receive(ctx context.Context, wait time.Duration) (*Message, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		m.mu.Lock()
		if len(m.pending) > 0 {
			msg := m.pending[0]
			m.pending = m.pending[1:]
			m.mu.Unlock()
			return msg, nil
		}
		m.mu.Unlock()

		select {
		case <-m.notify:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *Memory) Delete(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted[msg.ID] = true
	return nil
}

// Deleted は Delete 済みのメッセージ数を返します。
func (m *Memory) Deleted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deleted)
}

// Len は未受信のメッセージ数を返します。
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Memory) Close() error { return nil }
