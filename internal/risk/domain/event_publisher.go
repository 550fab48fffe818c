package domain

import "context"

// EventPublisher 事件发布者接口
type EventPublisher interface {
	// PublishAssessmentCompleted 发布组合风险评估完成事件
	PublishAssessmentCompleted(ctx context.Context, event RiskAssessmentCompletedEvent) error
}
