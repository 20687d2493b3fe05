package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Bus 基于 watermill gochannel 的进程内事件总线（对外导出）
// 每种事件类型对应一个topic，没有订阅者时事件被丢弃
type Bus struct {
	pubSub *gochannel.GoChannel
	mu     sync.RWMutex
	closed bool
}

// NewBus 创建事件总线
// bufferSize: 每个订阅者的输出缓冲
// logger: watermill日志适配器，nil时不输出
func NewBus(bufferSize int64, logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		pubSub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: bufferSize,
		}, logger),
	}
}

// Publish 发布事件（实现Publisher接口）
func (b *Bus) Publish(eventType EventType, subjectID string, payload interface{}) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("事件总线已关闭")
	}

	ev, err := NewEvent(eventType, subjectID, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := message.NewMessage(ev.ID, data)
	msg.Metadata.Set("event_type", string(eventType))
	msg.Metadata.Set("subject_id", subjectID)
	if err := b.pubSub.Publish(string(eventType), msg); err != nil {
		return fmt.Errorf("发布事件 %s 失败: %w", eventType, err)
	}
	return nil
}

// Subscribe 订阅一种或多种事件，不指定时订阅全部
// ctx 取消或总线关闭时返回的channel被关闭
func (b *Bus) Subscribe(ctx context.Context, types ...EventType) (<-chan *Event, error) {
	if len(types) == 0 {
		types = AllEventTypes()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, fmt.Errorf("事件总线已关闭")
	}

	out := make(chan *Event, 64)
	var wg sync.WaitGroup
	for _, t := range types {
		messages, err := b.pubSub.Subscribe(ctx, string(t))
		if err != nil {
			return nil, fmt.Errorf("订阅事件 %s 失败: %w", t, err)
		}
		wg.Add(1)
		go func(messages <-chan *message.Message) {
			defer wg.Done()
			for msg := range messages {
				var ev Event
				if err := json.Unmarshal(msg.Payload, &ev); err != nil {
					log.Printf("⚠️ [EventBus] 丢弃无法解析的事件: ID=%s, Error=%v", msg.UUID, err)
					msg.Ack()
					continue
				}
				select {
				case out <- &ev:
				case <-ctx.Done():
				}
				msg.Ack()
			}
		}(messages)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

// Close 关闭总线，所有订阅channel随之关闭
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubSub.Close()
}

var _ Publisher = (*Bus)(nil)
