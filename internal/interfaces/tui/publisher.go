package tui

import (
	"sync"

	"github.com/fanqingsong/dify-chat-ui/internal/domain/events"
)

// eventBuffer 缓冲区大小
// 满时丢弃事件：Publish 在控制器锁内调用，不能阻塞；界面收到任意事件后都会重新读取完整状态
const eventBuffer = 64

// ChannelPublisher 把控制器事件转交给 TUI 主循环
type ChannelPublisher struct {
	ch     chan events.Event
	mu     sync.Mutex
	closed bool
}

// NewChannelPublisher 创建发布器
func NewChannelPublisher() *ChannelPublisher {
	return &ChannelPublisher{ch: make(chan events.Event, eventBuffer)}
}

// Publish 非阻塞投递
func (p *ChannelPublisher) Publish(ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- ev:
	default:
	}
}

// Events 事件通道，Close 后关闭
func (p *ChannelPublisher) Events() <-chan events.Event {
	return p.ch
}

// Close 关闭通道
func (p *ChannelPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
}
