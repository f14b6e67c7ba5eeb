package mq

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRenderEvent(t *testing.T) {
	at := time.Date(2022, 3, 8, 10, 6, 0, 0, time.FixedZone("CST", 8*3600))
	e := NewRenderEvent(12, 0.2, true, 128, 96, 35*time.Millisecond+400*time.Microsecond, at)

	data, err := e.Encode()
	require.NoError(t, err)
	require.JSONEq(t, `{
		"radius": 12,
		"compress_scale": 0.2,
		"blurred": true,
		"width": 128,
		"height": 96,
		"elapsed_ms": 35,
		"rendered_at": "2022-03-08T02:06:00Z"
	}`, string(data))

	var decoded RenderEvent
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.True(t, at.Equal(decoded.RenderedAt))
}

func TestNoBrokers(t *testing.T) {
	_, err := NewProducer(Config{Topic: "renders"}, zap.NewExample())
	require.ErrorIs(t, err, ErrNoBrokers)

	_, err = NewConsumer(Config{Topic: "triggers", GroupId: "blurd"}, zap.NewExample())
	require.ErrorIs(t, err, ErrNoBrokers)
}

func kafkaConfig(t *testing.T) Config {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("KAFKA_BROKERS is not set")
	}
	return Config{
		Brokers:  strings.Split(brokers, ","),
		Topic:    os.Getenv("KAFKA_TOPIC"),
		GroupId:  os.Getenv("KAFKA_GROUP_ID"),
		Username: os.Getenv("KAFKA_USERNAME"),
		Password: os.Getenv("KAFKA_PASSWORD"),
	}
}

func TestProductAndConsume(t *testing.T) {
	cfg := kafkaConfig(t)

	p, err := NewProducer(cfg, zap.NewExample())
	require.NoError(t, err)
	defer p.Close()

	c, err := NewConsumer(cfg, zap.NewExample())
	require.NoError(t, err)

	received := make(chan []byte, 16)
	exit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Consume(exit, func(value []byte) error {
			received <- value
			return nil
		})
	}()

	value := []byte(`{"radius": 5, "compress_scale": 0.2}`)
	require.NoError(t, p.Product(context.Background(), value))

	select {
	case got := <-received:
		require.Equal(t, value, got)
	case <-time.After(30 * time.Second):
		t.Fatal("message was not consumed")
	}

	close(exit)
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not exit")
	}
}
