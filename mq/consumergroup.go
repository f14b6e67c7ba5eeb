package mq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"realtime/utils"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var maxBackOff = 30

type consumer struct {
	group   *kafka.ConsumerGroup
	logger  *zap.Logger
	dialer  *kafka.Dialer
	brokers []string
}

func NewConsumer(cfg Config, l *zap.Logger) (Consumer, error) {
	dialer, err := cfg.dialer()
	if err != nil {
		return nil, err
	}

	group, err := kafka.NewConsumerGroup(kafka.ConsumerGroupConfig{
		Dialer:      dialer,
		ID:          cfg.GroupId,
		Brokers:     cfg.Brokers,
		Topics:      []string{cfg.Topic},
		Logger:      infoLogger{l},
		ErrorLogger: errorLogger{l},
	})
	if err != nil {
		return nil, err
	}

	return &consumer{
		brokers: cfg.Brokers,
		dialer:  dialer,
		group:   group,
		logger:  l,
	}, nil
}

func (c *consumer) wait(exit chan struct{}, cancel context.CancelFunc) {
	<-exit
	cancel()
	c.group.Close()
}

// Consume invoke f for every message of every generation assigned to this
// member, until exit is closed.
func (c *consumer) Consume(exit chan struct{}, f func(value []byte) error) {
	ctx, cancel := context.WithCancel(context.Background())
	go c.wait(exit, cancel)

	backOff := 1
	for {
		gen, err := c.group.Next(ctx)
		if err != nil {
			if errors.Is(err, kafka.ErrGroupClosed) || ctx.Err() != nil {
				c.logger.Info("consumer group exit")
				return
			}
			c.logger.Error(fmt.Sprintf("consumer group Next, retry after %ds", backOff), zap.Error(err))

			tick := time.NewTimer(time.Duration(backOff) * time.Second)
			select {
			case <-ctx.Done():
				tick.Stop()
				return
			case <-tick.C:
				backOff = utils.BackOff(backOff, maxBackOff)
			}
			continue
		}
		backOff = 1

		for topic := range gen.Assignments {
			topic := topic
			for _, assignment := range gen.Assignments[topic] {
				partition, offset := assignment.ID, assignment.Offset
				gen.Start(func(ctx context.Context) {
					c.read(ctx, gen, topic, partition, offset, f)
				})
			}
		}
	}
}

func (c *consumer) read(ctx context.Context, gen *kafka.Generation, topic string, partition int, offset int64, f func(value []byte) error) {
	c.logger.Info(fmt.Sprintf("consumer start reader at topic[%s], partition[%d], offset[%d]", topic, partition, offset))
	// create reader for this partition.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Dialer:         c.dialer,
		Brokers:        c.brokers,
		Topic:          topic,
		Partition:      partition,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	if err := reader.SetOffset(offset); err != nil {
		c.logger.Error("consumer reader SetOffset", zap.Error(err))
	}
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, kafka.ErrGenerationEnded) || ctx.Err() != nil {
				c.logger.Info("consumer reader exit")
				return
			}
			c.logger.Error("consumer reader ReadMessage", zap.Error(err))
			continue
		}

		c.logger.Debug(fmt.Sprintf("received message topic[%s], partition[%d], offset[%d], value[%s], time[%s]",
			msg.Topic, msg.Partition, msg.Offset, string(msg.Value), msg.Time.String()))

		if err := f(msg.Value); err != nil {
			c.logger.Error("consumer callback invoke", zap.Error(err))
		}

		if err := gen.CommitOffsets(map[string]map[int]int64{msg.Topic: {msg.Partition: msg.Offset + 1}}); err != nil {
			c.logger.Error("consumer generation CommitOffsets", zap.Error(err))
		}
	}
}
