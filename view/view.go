package view

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"realtime/blur"
	"realtime/taskqueue"

	"go.uber.org/zap"
)

const (
	MaxBlurRadius        = float64(blur.MaxRadius)
	DefaultCompressScale = 0.2
)

// Submitter runs blur tasks off the caller goroutine.
type Submitter interface {
	Submit(task taskqueue.Task)
	ShutdownNow()
}

// Transform produce the blurred image of src.
type Transform func(src image.Image, radius int, compressScale float64) (*image.NRGBA, error)

// Result is what the view currently displays.
type Result struct {
	Image         image.Image
	Radius        float64
	CompressScale float64
	// Blurred is false when the source is displayed unchanged.
	Blurred    bool
	RenderedAt time.Time
	Elapsed    time.Duration
}

// BlurView keeps a source image and its blur parameters, and re-renders the
// blurred image whenever they change. Rendering happens on the executor so
// setters never block; only the latest render is displayed.
type BlurView struct {
	sync.RWMutex

	executor  Submitter
	transform Transform
	logger    *zap.Logger

	source        image.Image
	radius        float64
	compressScale float64
	smartUpdate   bool
	blurInCaller  bool
	detached      bool

	// seq numbers renders, published is the seq of latest.
	seq       uint64
	published uint64
	latest    *Result
	listeners []func(Result)

	// delivery orders listener calls, delivered is the last seq handed to
	// listeners.
	delivery  sync.Mutex
	delivered uint64
}

type FuncOption func(*BlurView)

// WithTransform replace how the blurred image is produced, default is blur.Blur.
func WithTransform(transform Transform) FuncOption {
	return func(v *BlurView) {
		v.transform = transform
	}
}

// WithSmartUpdate skip re-rendering when parameters did not change, default is true.
func WithSmartUpdate(enable bool) FuncOption {
	return func(v *BlurView) {
		v.smartUpdate = enable
	}
}

// WithBlurInCaller render synchronously in the goroutine changing the
// parameters instead of the executor, default is false.
func WithBlurInCaller(enable bool) FuncOption {
	return func(v *BlurView) {
		v.blurInCaller = enable
	}
}

// WithBlurRadius set the initial blur radius, default is 0 (no blur).
func WithBlurRadius(radius float64) FuncOption {
	return func(v *BlurView) {
		v.radius = clampRadius(radius)
	}
}

// WithCompressScale set the initial compress scale, default is 0.2.
func WithCompressScale(scale float64) FuncOption {
	return func(v *BlurView) {
		v.compressScale = clampScale(scale)
	}
}

func New(executor Submitter, logger *zap.Logger, options ...FuncOption) *BlurView {
	v := &BlurView{
		executor:      executor,
		transform:     blur.Blur,
		logger:        logger,
		compressScale: DefaultCompressScale,
		smartUpdate:   true,
	}
	for _, option := range options {
		option(v)
	}
	return v
}

// SetSource replace the source image and re-render.
func (v *BlurView) SetSource(img image.Image) {
	v.Lock()
	v.source = img
	v.Unlock()
	v.Update()
}

func (v *BlurView) Source() image.Image {
	v.RLock()
	defer v.RUnlock()
	return v.source
}

// SetBlurRadius set the radius, clamped to [0, 25].
func (v *BlurView) SetBlurRadius(radius float64) {
	v.SetBlurAndCompress(radius, v.CompressScale())
}

// SetCompressScale set the compress scale, clamped to [0, 1].
func (v *BlurView) SetCompressScale(scale float64) {
	v.SetBlurAndCompress(v.BlurRadius(), scale)
}

// SetBlurAndCompress set both parameters with a single re-render.
func (v *BlurView) SetBlurAndCompress(radius, scale float64) {
	radius, scale = clampRadius(radius), clampScale(scale)

	v.Lock()
	changed := radius != v.radius || scale != v.compressScale
	v.radius, v.compressScale = radius, scale
	smart := v.smartUpdate
	v.Unlock()

	if changed || !smart {
		v.Update()
	}
}

func (v *BlurView) BlurRadius() float64 {
	v.RLock()
	defer v.RUnlock()
	return v.radius
}

func (v *BlurView) CompressScale() float64 {
	v.RLock()
	defer v.RUnlock()
	return v.compressScale
}

// Update re-render the current source with the current parameters.
func (v *BlurView) Update() {
	v.Lock()
	if v.source == nil || v.detached {
		v.Unlock()
		return
	}
	v.seq++
	seq, src, radius, scale := v.seq, v.source, v.radius, v.compressScale
	blurInCaller := v.blurInCaller
	v.Unlock()

	if radius == 0 || scale == 0 {
		v.publish(seq, Result{
			Image:         src,
			Radius:        radius,
			CompressScale: scale,
			RenderedAt:    time.Now(),
		})
		return
	}

	if blurInCaller {
		v.render(context.Background(), seq, src, radius, scale)
		return
	}
	v.executor.Submit(func(ctx context.Context) {
		v.render(ctx, seq, src, radius, scale)
	})
}

// Attach resume rendering after Detach.
func (v *BlurView) Attach() {
	v.Lock()
	v.detached = false
	v.Unlock()
	v.Update()
}

// Detach stop rendering and interrupt pending blurs. Results finishing after
// Detach are dropped.
func (v *BlurView) Detach() {
	v.Lock()
	v.detached = true
	v.Unlock()
	v.executor.ShutdownNow()
}

func (v *BlurView) IsDetached() bool {
	v.RLock()
	defer v.RUnlock()
	return v.detached
}

// Latest return the displayed result, false before the first render.
func (v *BlurView) Latest() (Result, bool) {
	v.RLock()
	defer v.RUnlock()
	if v.latest == nil {
		return Result{}, false
	}
	return *v.latest, true
}

// OnRender register f to be called with every displayed result, in render
// order. f must not change the view.
func (v *BlurView) OnRender(f func(Result)) {
	v.Lock()
	v.listeners = append(v.listeners, f)
	v.Unlock()
}

func (v *BlurView) render(ctx context.Context, seq uint64, src image.Image, radius, scale float64) {
	start := time.Now()
	img, err := v.transform(src, blurRadius(radius), scale)
	if err != nil {
		v.logger.Error(fmt.Sprintf("[BlurView] render radius[%v] scale[%v] failed", radius, scale), zap.Error(err))
		return
	}
	if ctx.Err() != nil {
		v.logger.Debug("[BlurView] render interrupted, drop result", zap.Uint64("seq", seq))
		return
	}

	now := time.Now()
	v.publish(seq, Result{
		Image:         img,
		Radius:        radius,
		CompressScale: scale,
		Blurred:       true,
		RenderedAt:    now,
		Elapsed:       now.Sub(start),
	})
}

func (v *BlurView) publish(seq uint64, r Result) {
	v.Lock()
	if v.detached || seq < v.published {
		v.Unlock()
		v.logger.Debug("[BlurView] drop stale result", zap.Uint64("seq", seq))
		return
	}
	v.published = seq
	v.latest = &r
	v.Unlock()

	// listeners see results in render order, a result overtaken while
	// waiting for delivery is skipped.
	v.delivery.Lock()
	defer v.delivery.Unlock()
	if seq <= v.delivered {
		v.logger.Debug("[BlurView] skip delivery of stale result", zap.Uint64("seq", seq))
		return
	}
	v.delivered = seq

	v.RLock()
	listeners := make([]func(Result), len(v.listeners))
	copy(listeners, v.listeners)
	v.RUnlock()

	for _, f := range listeners {
		f(r)
	}
}

// blurRadius convert a view radius in (0, 25] to a transform radius.
func blurRadius(radius float64) int {
	r := int(math.Round(radius))
	if r < blur.MinRadius {
		r = blur.MinRadius
	}
	return r
}

func clampRadius(radius float64) float64 {
	if math.IsNaN(radius) || radius < 0 {
		return 0
	}
	return math.Min(radius, MaxBlurRadius)
}

func clampScale(scale float64) float64 {
	if math.IsNaN(scale) || scale < 0 {
		return 0
	}
	return math.Min(scale, 1)
}
