package domain

import "time"

// TopicAssessmentCompleted 组合风险评估完成事件主题
const TopicAssessmentCompleted = "risk.assessment.completed"

// RiskAssessmentCompletedEvent 组合风险评估完成事件，携带完整评估结果
type RiskAssessmentCompletedEvent struct {
	EventType  string          `json:"event_type"`
	Assessment *RiskAssessment `json:"assessment"`
	OccurredOn time.Time       `json:"occurred_on"`
}

// NewRiskAssessmentCompletedEvent 构造评估完成事件
func NewRiskAssessmentCompletedEvent(a *RiskAssessment) RiskAssessmentCompletedEvent {
	return RiskAssessmentCompletedEvent{
		EventType:  TopicAssessmentCompleted,
		Assessment: a,
		OccurredOn: a.Timestamp,
	}
}
