package mq

import (
	"context"
	"encoding/json"
	"time"
)

type Producer interface {
	Product(ctx context.Context, value []byte) error
	Close() error
}

type Consumer interface {
	Consume(exit chan struct{}, callback func(value []byte) error)
}

// RenderEvent is published every time a blurred image is displayed.
type RenderEvent struct {
	Radius        float64   `json:"radius"`
	CompressScale float64   `json:"compress_scale"`
	Blurred       bool      `json:"blurred"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	ElapsedMs     int64     `json:"elapsed_ms"`
	RenderedAt    time.Time `json:"rendered_at"`
}

func NewRenderEvent(radius, compressScale float64, blurred bool, width, height int, elapsed time.Duration, renderedAt time.Time) RenderEvent {
	return RenderEvent{
		Radius:        radius,
		CompressScale: compressScale,
		Blurred:       blurred,
		Width:         width,
		Height:        height,
		ElapsedMs:     elapsed.Milliseconds(),
		RenderedAt:    renderedAt.UTC(),
	}
}

func (e RenderEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}
