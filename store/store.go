package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-redis/redis/v8"
)

var ErrNotFound = errors.New("store: no result saved")

var defaultTTL = 24 * time.Hour

// Snapshot is a displayed result, persisted so other processes can serve it.
type Snapshot struct {
	Image         image.Image
	Radius        float64
	CompressScale float64
	Blurred       bool
	RenderedAt    time.Time
}

// ResultStore keeps the latest displayed result only, every save replaces
// the previous one.
type ResultStore interface {
	SaveLatest(ctx context.Context, s Snapshot) error
	Latest(ctx context.Context) (Snapshot, error)
}

const (
	fieldImage         = "image"
	fieldRadius        = "radius"
	fieldCompressScale = "compress_scale"
	fieldBlurred       = "blurred"
	fieldRenderedAt    = "rendered_at"
)

type redisStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

type FuncOption func(*redisStore)

// WithTTL set how long a saved result lives, default is 24h.
func WithTTL(ttl time.Duration) FuncOption {
	return func(s *redisStore) {
		s.ttl = ttl
	}
}

// NewRedisStore store the latest result in the redis hash key.
func NewRedisStore(client redis.UniversalClient, key string, options ...FuncOption) ResultStore {
	s := &redisStore{
		client: client,
		key:    key,
		ttl:    defaultTTL,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *redisStore) SaveLatest(ctx context.Context, snap Snapshot) error {
	if snap.Image == nil {
		return errors.New("store: nil image")
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, snap.Image, imaging.PNG); err != nil {
		return fmt.Errorf("store: encode image: %w", err)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		pipe.HSet(ctx, s.key,
			fieldImage, buf.Bytes(),
			fieldRadius, strconv.FormatFloat(snap.Radius, 'f', -1, 64),
			fieldCompressScale, strconv.FormatFloat(snap.CompressScale, 'f', -1, 64),
			fieldBlurred, strconv.FormatBool(snap.Blurred),
			fieldRenderedAt, snap.RenderedAt.UTC().Format(time.RFC3339Nano),
		)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: save %s: %w", s.key, err)
	}
	return nil
}

func (s *redisStore) Latest(ctx context.Context) (Snapshot, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("store: load %s: %w", s.key, err)
	}
	if len(fields) == 0 {
		return Snapshot{}, ErrNotFound
	}

	img, err := imaging.Decode(bytes.NewReader([]byte(fields[fieldImage])))
	if err != nil {
		return Snapshot{}, fmt.Errorf("store: decode image: %w", err)
	}

	snap := Snapshot{Image: img}
	if snap.Radius, err = strconv.ParseFloat(fields[fieldRadius], 64); err != nil {
		return Snapshot{}, fmt.Errorf("store: parse %s: %w", fieldRadius, err)
	}
	if snap.CompressScale, err = strconv.ParseFloat(fields[fieldCompressScale], 64); err != nil {
		return Snapshot{}, fmt.Errorf("store: parse %s: %w", fieldCompressScale, err)
	}
	if snap.Blurred, err = strconv.ParseBool(fields[fieldBlurred]); err != nil {
		return Snapshot{}, fmt.Errorf("store: parse %s: %w", fieldBlurred, err)
	}
	if snap.RenderedAt, err = time.Parse(time.RFC3339Nano, fields[fieldRenderedAt]); err != nil {
		return Snapshot{}, fmt.Errorf("store: parse %s: %w", fieldRenderedAt, err)
	}
	return snap, nil
}
