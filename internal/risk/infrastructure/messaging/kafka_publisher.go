package messaging

import (
	"context"

	"github.com/wyfcoding/portfoliorisk/internal/risk/domain"
)

// MessageSender 消息发送端，由 pkg/mq.KafkaProducer 实现
type MessageSender interface {
	SendMessage(ctx context.Context, topic, key string, value any) error
	SendRaw(ctx context.Context, topic, key string, payload []byte) error
}

// KafkaEventPublisher 直接写 Kafka 的事件发布器，以组合 ID 为消息 key
type KafkaEventPublisher struct {
	sender MessageSender
}

// NewKafkaEventPublisher 创建 Kafka 事件发布器
func NewKafkaEventPublisher(sender MessageSender) *KafkaEventPublisher {
	return &KafkaEventPublisher{sender: sender}
}

// PublishAssessmentCompleted 发布组合风险评估完成事件
func (p *KafkaEventPublisher) PublishAssessmentCompleted(ctx context.Context, event domain.RiskAssessmentCompletedEvent) error {
	return p.sender.SendMessage(ctx, domain.TopicAssessmentCompleted, event.Assessment.PortfolioID, event)
}
