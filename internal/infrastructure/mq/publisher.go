// Package mq 关系事件的投递
// 业务写入成功后投递事件，投递失败只记日志，不影响已提交的关系状态
package mq

import (
	"context"
	"time"

	"regionchat_server/internal/model"
	"regionchat_server/pkg/util/snowflake"
)

// EventPublisher 关系事件发布接口
type EventPublisher interface {
	// Publish 发布事件，ID 与时间为空时自动填充
	Publish(ctx context.Context, event model.RelationEvent) error
	// Close 刷出缓冲中的事件并释放连接
	Close() error
}

// stamp 补齐事件 ID 与时间
func stamp(event *model.RelationEvent) {
	if event.ID == "" {
		event.ID = snowflake.GenerateIDString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
}

// partitionKey 同一对用户的事件落在同一分区，下游按顺序消费
func partitionKey(event *model.RelationEvent) string {
	if event.PairKey != "" {
		return event.PairKey
	}
	return event.ActorID
}
