package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	publishQueueSize = 256
	publishTimeout   = 5 * time.Second
)

// ErrPublishQueueFull 发送队列已满，事件被丢弃
var ErrPublishQueueFull = errors.New("kafka publish queue full")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkaGo.Message) error
	Close() error
}

// KafkaPublisher 将事件写入 production.events，以实体ID为 key 保证同一实体有序。
// Publish 只入队，由单个后台协程按顺序写出，请求路径不等待 broker
type KafkaPublisher struct {
	writer  messageWriter
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan []kafkaGo.Message
	done   chan struct{}
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	return newKafkaPublisher(newWriter(brokers, topic, logger), logger, publishQueueSize)
}

func newKafkaPublisher(w messageWriter, logger *zap.Logger, size int) *KafkaPublisher {
	p := &KafkaPublisher{
		writer:  w,
		logger:  logger,
		timeout: publishTimeout,
		queue:   make(chan []kafkaGo.Message, size),
		done:    make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkaGo.Message, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		msgs = append(msgs, kafkaGo.Message{
			Key:   []byte(e.EntityID),
			Value: payload,
		})
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return io.ErrClosedPipe
	}
	select {
	case p.queue <- msgs:
		return nil
	default:
		return fmt.Errorf("%w: dropped %d events", ErrPublishQueueFull, len(msgs))
	}
}

func (p *KafkaPublisher) loop() {
	defer close(p.done)
	for msgs := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
			p.logger.Warn("Failed to write events", zap.Int("count", len(msgs)), zap.Error(err))
		}
		cancel()
	}
}

// Close 写完队列中剩余的事件后关闭 writer
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.writer.Close()
}

// Handler 处理一条消息
type Handler func(ctx context.Context, key, value []byte) error

// Consumer 消费者组读取循环
type Consumer struct {
	reader *kafkaGo.Reader
	logger *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, logger *zap.Logger) *Consumer {
	return &Consumer{reader: newReader(brokers, topic, groupID), logger: logger}
}

// Run 阻塞直到 ctx 取消。处理失败的消息记录日志后跳过
func (c *Consumer) Run(ctx context.Context, handler Handler) {
	topic := c.reader.Config().Topic
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Consumer shutting down", zap.String("topic", topic))
				return
			}
			c.logger.Error("Error reading message", zap.String("topic", topic), zap.Error(err))
			continue
		}

		if err := handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Error("Error handling message",
				zap.String("topic", topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func newWriter(brokers []string, topic string, logger *zap.Logger) *kafkaGo.Writer {
	return &kafkaGo.Writer{
		Addr:         kafkaGo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkaGo.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafkaGo.Message, err error) {
			if err != nil {
				logger.Warn("Kafka delivery failed", zap.String("topic", topic), zap.Int("count", len(messages)), zap.Error(err))
			}
		},
	}
}

func newReader(brokers []string, topic, groupID string) *kafkaGo.Reader {
	return kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
}
