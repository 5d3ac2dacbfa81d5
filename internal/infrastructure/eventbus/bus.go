package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/niceassistant/assistant/pkg/safego"
)

// Event 事件接口
type Event interface {
	Type() string
	UserID() string
	Timestamp() time.Time
	Payload() any
}

// BaseEvent 基础事件实现
type BaseEvent struct {
	EventType      string
	EventUserID    string
	EventTimestamp time.Time
	EventPayload   any
}

// Type 返回事件类型
func (e *BaseEvent) Type() string { return e.EventType }

// UserID 返回事件所属用户，订阅方据此隔离推送
func (e *BaseEvent) UserID() string { return e.EventUserID }

// Timestamp 返回事件时间戳
func (e *BaseEvent) Timestamp() time.Time { return e.EventTimestamp }

// Payload 返回事件载荷
func (e *BaseEvent) Payload() any { return e.EventPayload }

// NewEvent 创建新事件
func NewEvent(eventType, userID string, payload any) *BaseEvent {
	return &BaseEvent{
		EventType:      eventType,
		EventUserID:    userID,
		EventTimestamp: time.Now().UTC(),
		EventPayload:   payload,
	}
}

// Handler 事件处理函数
type Handler func(ctx context.Context, event Event)

// Bus 事件总线接口
type Bus interface {
	// Publish 发布事件，不阻塞调用方
	Publish(ctx context.Context, event Event)
	// Subscribe 订阅事件，返回取消订阅函数；eventType 为 "*" 时接收全部事件
	Subscribe(eventType string, handler Handler) (unsubscribe func())
	// Close 关闭事件总线并等待在途事件处理完毕
	Close()
}

type subscription struct {
	id      uint64
	handler Handler
}

// InMemoryBus 内存事件总线
type InMemoryBus struct {
	mu        sync.RWMutex
	handlers  map[string][]subscription
	eventChan chan eventWrapper
	closed    bool
	nextID    atomic.Uint64
	dropped   atomic.Int64
	logger    *zap.Logger
	wg        sync.WaitGroup
}

type eventWrapper struct {
	ctx   context.Context
	event Event
}

// Compile-time interface check
var _ Bus = (*InMemoryBus)(nil)

// NewInMemoryBus 创建内存事件总线
func NewInMemoryBus(logger *zap.Logger, bufferSize int) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	bus := &InMemoryBus{
		handlers:  make(map[string][]subscription),
		eventChan: make(chan eventWrapper, bufferSize),
		logger:    logger.With(zap.String("component", "eventbus")),
	}

	// 启动事件分发协程
	bus.wg.Add(1)
	go bus.dispatch()

	return bus
}

// Publish 发布事件
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	// Handlers run after the request returns, so they must not inherit its cancellation.
	ctx = context.WithoutCancel(ctx)

	// 非阻塞发送
	select {
	case b.eventChan <- eventWrapper{ctx: ctx, event: event}:
		b.logger.Debug("Event published",
			zap.String("type", event.Type()),
			zap.String("user_id", event.UserID()),
		)
	default:
		b.dropped.Add(1)
		b.logger.Warn("Event buffer full, dropping event",
			zap.String("type", event.Type()),
		)
	}
}

// Subscribe 订阅事件
func (b *InMemoryBus) Subscribe(eventType string, handler Handler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	b.logger.Debug("Handler subscribed", zap.String("event_type", eventType))

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(eventType, id) })
	}
}

func (b *InMemoryBus) unsubscribe(eventType string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	kept := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(b.handlers, eventType)
	} else {
		b.handlers[eventType] = kept
	}
}

// Dropped 返回因缓冲区满而丢弃的事件数
func (b *InMemoryBus) Dropped() int64 {
	return b.dropped.Load()
}

// Close 关闭事件总线
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.eventChan)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("Event bus closed")
}

// dispatch 事件分发循环
func (b *InMemoryBus) dispatch() {
	defer b.wg.Done()

	for wrapper := range b.eventChan {
		b.dispatchEvent(wrapper.ctx, wrapper.event)
	}
}

// dispatchEvent 分发单个事件
func (b *InMemoryBus) dispatchEvent(ctx context.Context, event Event) {
	b.mu.RLock()
	subs := make([]subscription, 0, len(b.handlers[event.Type()])+len(b.handlers["*"]))
	subs = append(subs, b.handlers[event.Type()]...)
	subs = append(subs, b.handlers["*"]...)
	b.mu.RUnlock()

	// 并行执行处理器
	var wg sync.WaitGroup
	for _, s := range subs {
		wg.Add(1)
		h := s.handler
		safego.Go(b.logger, "event:"+event.Type(), func() {
			defer wg.Done()
			h(ctx, event)
		})
	}
	wg.Wait()
}
