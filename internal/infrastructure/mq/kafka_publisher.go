package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"

	"regionchat_server/internal/config"
	"regionchat_server/internal/model"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher 把关系事件写入 Kafka
// Writer 为异步模式，写失败在 Completion 回调里记录
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher 创建 Kafka 发布器
func NewKafkaPublisher(cfg *config.KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.HostPort),
			Topic:                  cfg.RelationTopic,
			Balancer:               &kafka.Hash{},
			WriteTimeout:           cfg.Timeout,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: false,
			Async:                  true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					zap.L().Error("投递关系事件失败", zap.Int("count", len(messages)), zap.Error(err))
				}
			},
		},
	}
}

// Publish 序列化并投递事件
func (p *KafkaPublisher) Publish(ctx context.Context, event model.RelationEvent) error {
	stamp(&event)
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal relation event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(partitionKey(&event)),
		Value: value,
	})
}

// Close 刷出缓冲并关闭 Writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// CreateTopic 创建关系事件 topic，已存在时 Kafka 返回的错误忽略
// 需要连到 controller 节点才能建 topic
func CreateTopic(cfg *config.KafkaConfig, partitions int) error {
	conn, err := kafka.Dial("tcp", cfg.HostPort)
	if err != nil {
		return fmt.Errorf("dial kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("get kafka controller: %w", err)
	}
	ctrlConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial kafka controller: %w", err)
	}
	defer ctrlConn.Close()

	err = ctrlConn.CreateTopics(kafka.TopicConfig{
		Topic:             cfg.RelationTopic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", cfg.RelationTopic, err)
	}
	return nil
}
