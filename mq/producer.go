package mq

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func NewProducer(cfg Config, l *zap.Logger) (Producer, error) {
	dialer, err := cfg.dialer()
	if err != nil {
		return nil, err
	}

	return &producer{writer: kafka.NewWriter(kafka.WriterConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,

		Dialer:       dialer,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: int(kafka.RequireAll),
		Async:        true,
		Logger:       infoLogger{l},
		ErrorLogger:  errorLogger{l},
	})}, nil
}

type producer struct {
	writer *kafka.Writer
}

func (p *producer) Product(ctx context.Context, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Value: value,
	})
}

// Close flush pending async writes.
func (p *producer) Close() error {
	return p.writer.Close()
}
