package mq

import (
	"context"

	"regionchat_server/internal/model"

	"go.uber.org/zap"
)

// LogPublisher channel 模式：不接消息队列，事件只写日志
type LogPublisher struct{}

// NewLogPublisher 创建日志发布器
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(_ context.Context, event model.RelationEvent) error {
	stamp(&event)
	zap.L().Info("relation event",
		zap.String("event_id", event.ID),
		zap.String("type", event.Type),
		zap.String("region", string(event.Region)),
		zap.String("actor_id", event.ActorID),
		zap.String("target_id", event.TargetID),
		zap.String("entity_id", event.EntityID),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
