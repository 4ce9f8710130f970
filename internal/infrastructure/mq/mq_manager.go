package mq

import (
	"regionchat_server/internal/config"

	"go.uber.org/zap"
)

// 事件投递模式
const (
	ModeChannel = "channel"
	ModeKafka   = "kafka"
)

// NewPublisher 按配置选择发布器，未知模式退回日志发布器
func NewPublisher(cfg *config.KafkaConfig) EventPublisher {
	switch cfg.MessageMode {
	case ModeKafka:
		if err := CreateTopic(cfg, cfg.Partition); err != nil {
			zap.L().Warn("创建关系事件 topic 失败，沿用已有 topic", zap.Error(err))
		}
		zap.L().Info("关系事件投递到 Kafka", zap.String("topic", cfg.RelationTopic))
		return NewKafkaPublisher(cfg)
	case ModeChannel:
	default:
		zap.L().Warn("未知的事件投递模式，使用日志模式", zap.String("mode", cfg.MessageMode))
	}
	return NewLogPublisher()
}
