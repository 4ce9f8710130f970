package memstore

import (
	"context"
	"sync"

	"regionchat_server/internal/infrastructure/mq"
	"regionchat_server/internal/model"
)

// Events 记录发布的关系事件
type Events struct {
	mu     sync.Mutex
	events []model.RelationEvent
}

var _ mq.EventPublisher = (*Events)(nil)

func (e *Events) Publish(_ context.Context, event model.RelationEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *Events) Close() error { return nil }

// Types 按发布顺序返回事件类型
func (e *Events) Types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}
