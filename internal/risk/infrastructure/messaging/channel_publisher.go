package messaging

import (
	"context"
	"sync"

	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/portfoliorisk/internal/risk/domain"
)

// ChannelEventPublisher 进程内事件分发，订阅者各自持有带缓冲的 channel
// 订阅者缓冲已满时丢弃该事件并记录日志，发布方不会被阻塞
type ChannelEventPublisher struct {
	mu     sync.RWMutex
	subs   []chan domain.RiskAssessmentCompletedEvent
	closed bool
}

// NewChannelEventPublisher 创建进程内发布器
func NewChannelEventPublisher() *ChannelEventPublisher {
	return &ChannelEventPublisher{}
}

// Subscribe 注册订阅者，buffer 为 channel 容量
func (p *ChannelEventPublisher) Subscribe(buffer int) <-chan domain.RiskAssessmentCompletedEvent {
	ch := make(chan domain.RiskAssessmentCompletedEvent, buffer)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		close(ch)
		return ch
	}
	p.subs = append(p.subs, ch)
	return ch
}

// PublishAssessmentCompleted 向所有订阅者投递事件
func (p *ChannelEventPublisher) PublishAssessmentCompleted(ctx context.Context, event domain.RiskAssessmentCompletedEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil
	}
	for _, ch := range p.subs {
		select {
		case ch <- event:
		default:
			logging.Warn(ctx, "assessment event dropped, subscriber is full", "portfolio_id", event.Assessment.PortfolioID)
		}
	}
	return nil
}

// Close 关闭所有订阅 channel
func (p *ChannelEventPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, ch := range p.subs {
		close(ch)
	}
	p.subs = nil
}
