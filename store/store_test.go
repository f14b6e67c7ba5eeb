package store

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/disintegration/imaging"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, options ...FuncOption) (ResultStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "blurd:latest", options...), mr
}

func TestLatestEmpty(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Latest(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveLatest(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	fill := color.NRGBA{R: 1, G: 2, B: 3, A: 255}
	at := time.Date(2022, 3, 8, 10, 6, 0, 123, time.UTC)
	require.NoError(t, s.SaveLatest(ctx, Snapshot{
		Image:         imaging.New(8, 4, fill),
		Radius:        12.5,
		CompressScale: 0.2,
		Blurred:       true,
		RenderedAt:    at,
	}))
	require.Equal(t, defaultTTL, mr.TTL("blurd:latest"))

	snap, err := s.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, 12.5, snap.Radius)
	require.Equal(t, 0.2, snap.CompressScale)
	require.True(t, snap.Blurred)
	require.True(t, at.Equal(snap.RenderedAt))
	require.Equal(t, image.Pt(8, 4), snap.Image.Bounds().Size())
	r, g, b, _ := snap.Image.At(0, 0).RGBA()
	require.Equal(t, []uint32{1, 2, 3}, []uint32{r >> 8, g >> 8, b >> 8})

	// a later save replaces the slot.
	require.NoError(t, s.SaveLatest(ctx, Snapshot{Image: imaging.New(2, 2, fill), RenderedAt: at}))
	snap, err = s.Latest(ctx)
	require.NoError(t, err)
	require.False(t, snap.Blurred)
	require.Equal(t, image.Pt(2, 2), snap.Image.Bounds().Size())
}

func TestTTL(t *testing.T) {
	s, mr := newStore(t, WithTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, s.SaveLatest(ctx, Snapshot{Image: imaging.New(1, 1, color.White), RenderedAt: time.Now()}))
	mr.FastForward(2 * time.Minute)

	_, err := s.Latest(ctx)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveNilImage(t *testing.T) {
	s, _ := newStore(t)
	require.Error(t, s.SaveLatest(context.Background(), Snapshot{}))
}

func TestRedisUnavailable(t *testing.T) {
	s, mr := newStore(t)
	mr.Close()

	err := s.SaveLatest(context.Background(), Snapshot{Image: imaging.New(1, 1, color.White)})
	require.Error(t, err)
	_, err = s.Latest(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}
