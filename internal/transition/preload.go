package transition

import (
	"context"
	"strings"
	"sync"
	"time"

	"chaos-stories/pkg/eventloop"

	"go.uber.org/zap"
)

// AssetLoader fetches or verifies one asset. Errors are logged and otherwise ignored.
type AssetLoader interface {
	Load(ctx context.Context, path string) error
}

// LoadResult classifies how a preload request was satisfied.
type LoadResult string

const (
	LoadInline LoadResult = "inline"
	LoadCached LoadResult = "cached"
	LoadOK     LoadResult = "loaded"
	LoadFailed LoadResult = "failed"
)

// Recorder receives preload telemetry.
type Recorder interface {
	AssetLoaded(result LoadResult, elapsed time.Duration)
	PreloadCeilingHit()
}

type nopRecorder struct{}

func (nopRecorder) AssetLoaded(LoadResult, time.Duration) {}
func (nopRecorder) PreloadCeilingHit() {}

// AssetCache remembers which assets were already requested. It is shared by every session and
// only ever grows.
type AssetCache struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewAssetCache() *AssetCache {
	return &AssetCache{keys: make(map[string]struct{})}
}

// Has reports whether key was added.
func (c *AssetCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.keys[key]
	return ok
}

// Add inserts key if absent and reports whether it was new.
func (c *AssetCache) Add(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.keys[key]; ok {
		return false
	}
	c.keys[key] = struct{}{}
	return true
}

// Len returns the number of cached keys.
func (c *AssetCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}

// IsInline reports whether the asset is a CSS gradient or data URI that needs no loading.
func IsInline(path string) bool {
	return strings.HasPrefix(path, "linear-gradient") || strings.HasPrefix(path, "data:")
}

// Preloader warms assets for one session. Completion callbacks run on the session scheduler.
type Preloader struct {
	log     *zap.Logger
	sched   eventloop.Scheduler
	loader  AssetLoader
	cache   *AssetCache
	rec     Recorder
	timeout time.Duration

	inflight map[string][]func()
}

// NewPreloader creates a preloader. timeout bounds a single load; zero means no bound.
func NewPreloader(log *zap.Logger, sched eventloop.Scheduler, loader AssetLoader, cache *AssetCache, timeout time.Duration, rec Recorder) *Preloader {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Preloader{
		log:      log.Named("preloader"),
		sched:    sched,
		loader:   loader,
		cache:    cache,
		rec:      rec,
		timeout:  timeout,
		inflight: make(map[string][]func()),
	}
}

// Preload makes sure path is loaded and calls done (which may be nil) when it is. Inline, empty and
// cached assets complete synchronously. Concurrent requests for the same path share one load.
func (p *Preloader) Preload(path string, done func()) {
	if path == "" || IsInline(path) {
		p.rec.AssetLoaded(LoadInline, 0)
		call(done)
		return
	}
	if p.cache.Has(path) {
		p.rec.AssetLoaded(LoadCached, 0)
		call(done)
		return
	}
	if waiters, ok := p.inflight[path]; ok {
		p.inflight[path] = append(waiters, done)
		return
	}
	p.inflight[path] = []func(){done}

	p.sched.Go(func() func() {
		started := time.Now()
		ctx := context.Background()
		if p.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}
		err := p.loader.Load(ctx, path)
		elapsed := time.Since(started)

		return func() {
			if err != nil {
				p.log.Warn("Asset preload failed, continuing", zap.String("path", path), zap.Error(err))
				p.rec.AssetLoaded(LoadFailed, elapsed)
			} else {
				p.rec.AssetLoaded(LoadOK, elapsed)
			}
			p.cache.Add(path)
			waiters := p.inflight[path]
			delete(p.inflight, path)
			for _, w := range waiters {
				call(w)
			}
		}
	})
}

// Pending reports whether a load for path is in flight.
func (p *Preloader) Pending(path string) bool {
	_, ok := p.inflight[path]
	return ok
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
