package messaging

import (
	"context"
	"time"

	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/messagequeue/outbox"
	"github.com/wyfcoding/portfoliorisk/internal/risk/domain"
	"gorm.io/gorm"
)

// OutboxEventPublisher 实现 EventPublisher 接口，使用 Outbox 模式
// 事件先写入 sys_outbox_messages，再由 Relay 返回的处理器异步投递
type OutboxEventPublisher struct {
	db  *gorm.DB
	mgr *outbox.Manager
}

// NewOutboxEventPublisher 创建新的 OutboxEventPublisher 实例
func NewOutboxEventPublisher(db *gorm.DB) *OutboxEventPublisher {
	return &OutboxEventPublisher{
		db:  db,
		mgr: outbox.NewManager(db, logging.Default().Logger),
	}
}

// Models 返回 outbox 表模型，供 AutoMigrate 使用
func Models() []any {
	return []any{&outbox.OutboxMessage{}}
}

// PublishAssessmentCompleted 评估完成事件写入 outbox 表，以组合 ID 为消息 key
func (p *OutboxEventPublisher) PublishAssessmentCompleted(ctx context.Context, event domain.RiskAssessmentCompletedEvent) error {
	return p.mgr.PublishInTx(p.db.WithContext(ctx), event.EventType, event.Assessment.PortfolioID, event)
}

// Relay 创建后台投递处理器，调用方负责 Start/Stop
// 失败的消息按指数退避重试，超过 max_retries 后标记为失败
func (p *OutboxEventPublisher) Relay(sender MessageSender, batchSize int, interval time.Duration) *outbox.Processor {
	return outbox.NewProcessor(p.mgr, sender.SendRaw, batchSize, interval)
}

// CleanupProcessedMessages 物理删除 before 之前已投递的消息
func (p *OutboxEventPublisher) CleanupProcessedMessages(ctx context.Context, before time.Time) error {
	return p.db.WithContext(ctx).Unscoped().
		Where("status = ? AND updated_at < ?", outbox.StatusSent, before).
		Delete(&outbox.OutboxMessage{}).Error
}

// RunCleanup 周期性清理保留期之外的已投递消息，直到 ctx 结束
func (p *OutboxEventPublisher) RunCleanup(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.CleanupProcessedMessages(ctx, time.Now().Add(-retention)); err != nil && ctx.Err() == nil {
				logging.Error(ctx, "outbox cleanup failed", "error", err)
			}
		}
	}
}
