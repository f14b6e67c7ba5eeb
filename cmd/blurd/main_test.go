package main

import (
	"context"
	"image/color"
	"testing"
	"time"

	"realtime/config"
	"realtime/view"

	"github.com/alicebob/miniredis/v2"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	logger, err := newLogger(config.LoggingConfig{Level: "warn", Format: "console"})
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = newLogger(config.LoggingConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
}

func TestSinksSaveLatest(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := newSinks(config.Config{
		Redis: config.RedisConfig{Address: mr.Addr(), Key: "blurd:latest", TTL: time.Hour},
	}, zap.NewExample())
	require.NoError(t, err)
	defer s.close()
	require.Nil(t, s.producer)

	s.publish(view.Result{
		Image:         imaging.New(4, 2, color.White),
		Radius:        8,
		CompressScale: 0.5,
		Blurred:       true,
		RenderedAt:    time.Now(),
	})

	snap, err := s.store.Latest(context.Background())
	require.NoError(t, err)
	require.Equal(t, 8.0, snap.Radius)
	require.Equal(t, time.Hour, mr.TTL("blurd:latest"))
}

func TestSinksDisabled(t *testing.T) {
	s, err := newSinks(config.Config{}, zap.NewExample())
	require.NoError(t, err)
	require.Nil(t, s.store)
	require.Nil(t, s.producer)

	require.NotPanics(t, func() {
		s.publish(view.Result{Image: imaging.New(1, 1, color.White)})
	})
	s.close()
}
