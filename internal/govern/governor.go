package govern

import (
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// PressureLevel classifies current memory usage against the thresholds.
type PressureLevel string

const (
	PressureNormal   PressureLevel = "normal"
	PressureWarning  PressureLevel = "warning"
	PressureCritical PressureLevel = "critical"
)

// MemoryStatus is a point-in-time snapshot of the governor's view of memory.
type MemoryStatus struct {
	CurrentUsage      uint64
	WarningThreshold  uint64
	CriticalThreshold uint64
	Pressure          PressureLevel
	ActiveTaskCount   int
}

// Token is an opaque cancellation handle scoped to one render invocation.
type Token struct {
	id string
}

// ID returns the token's identifier, used only for logging.
func (t *Token) ID() string {
	if t == nil {
		return ""
	}
	return t.id
}

// Options configures a Governor. Sampler and Clock exist so tests can drive
// the pressure state machine deterministically.
type Options struct {
	WarningBytes     uint64
	CriticalBytes    uint64
	SustainedWarning time.Duration
	PoolMaxKeys      int
	Sampler          func() uint64
	Clock            func() time.Time
	Logger           *log.Logger
}

// Governor owns memory monitoring, the buffer pool, and the cancellation
// token registry. One governor is constructed per pipeline and passed by
// pointer to every stage; there is no package-level instance.
type Governor struct {
	warning   uint64
	critical  uint64
	sustained time.Duration
	sampler   func() uint64
	clock     func() time.Time
	logger    *log.Logger

	pool *bufferPool

	mu           sync.Mutex
	tokens       map[string]bool // id -> revoked
	warningSince time.Time
	caches       []func()

	cleaning atomic.Bool
}

// New constructs a governor. Zero thresholds fall back to 250/300 MB.
func New(opts Options) *Governor {
	if opts.WarningBytes == 0 {
		opts.WarningBytes = 250 * 1024 * 1024
	}
	if opts.CriticalBytes == 0 {
		opts.CriticalBytes = 300 * 1024 * 1024
	}
	if opts.SustainedWarning <= 0 {
		opts.SustainedWarning = 10 * time.Second
	}
	if opts.Sampler == nil {
		opts.Sampler = heapUsage
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.New(discardWriter{}, "", 0)
	}
	return &Governor{
		warning:   opts.WarningBytes,
		critical:  opts.CriticalBytes,
		sustained: opts.SustainedWarning,
		sampler:   opts.Sampler,
		clock:     opts.Clock,
		logger:    opts.Logger,
		pool:      newBufferPool(opts.PoolMaxKeys),
		tokens:    make(map[string]bool),
	}
}

func heapUsage() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func classify(usage, warning, critical uint64) PressureLevel {
	switch {
	case usage > critical:
		return PressureCritical
	case usage > warning:
		return PressureWarning
	default:
		return PressureNormal
	}
}

// Status samples current usage and reports the governor's state.
func (g *Governor) Status() MemoryStatus {
	usage := g.sampler()

	g.mu.Lock()
	g.trackWarningLocked(usage)
	active := len(g.tokens)
	g.mu.Unlock()

	return MemoryStatus{
		CurrentUsage:      usage,
		WarningThreshold:  g.warning,
		CriticalThreshold: g.critical,
		Pressure:          classify(usage, g.warning, g.critical),
		ActiveTaskCount:   active,
	}
}

// trackWarningLocked updates the sustained-warning timer. The timer starts
// when usage first exceeds the warning threshold and resets the moment usage
// drops back to normal.
func (g *Governor) trackWarningLocked(usage uint64) {
	if usage > g.warning {
		if g.warningSince.IsZero() {
			g.warningSince = g.clock()
		}
	} else {
		g.warningSince = time.Time{}
	}
}

// NewToken registers and returns a fresh cancellation token.
func (g *Governor) NewToken() *Token {
	token := &Token{id: uuid.NewString()}
	g.mu.Lock()
	g.tokens[token.id] = false
	g.mu.Unlock()
	return token
}

// Unregister removes the token; ShouldCancel returns true for it afterwards.
func (g *Governor) Unregister(token *Token) {
	if token == nil {
		return
	}
	g.mu.Lock()
	delete(g.tokens, token.id)
	g.mu.Unlock()
}

// Revoke marks the token cancelled without removing it.
func (g *Governor) Revoke(token *Token) {
	if token == nil {
		return
	}
	g.mu.Lock()
	if _, ok := g.tokens[token.id]; ok {
		g.tokens[token.id] = true
	}
	g.mu.Unlock()
}

// ShouldCancel reports whether work holding token must stop. True when the
// token was revoked or unregistered, when usage exceeds the critical
// threshold (which also triggers an async forced cleanup), or when usage has
// stayed above the warning threshold longer than the sustained grace period.
func (g *Governor) ShouldCancel(token *Token) bool {
	if token == nil {
		return true
	}

	usage := g.sampler()

	g.mu.Lock()
	revoked, registered := g.tokens[token.id]
	g.trackWarningLocked(usage)
	warningSince := g.warningSince
	g.mu.Unlock()

	if !registered || revoked {
		return true
	}

	if usage > g.critical {
		g.logger.Printf("memory critical: %d bytes > %d, cancelling %s", usage, g.critical, token.id)
		g.asyncCleanup()
		return true
	}

	if !warningSince.IsZero() && g.clock().Sub(warningSince) > g.sustained {
		g.logger.Printf("memory warning sustained beyond %s, cancelling %s", g.sustained, token.id)
		return true
	}

	return false
}

// RegisterCache adds a cache-clear hook invoked during the cleanup cascade.
func (g *Governor) RegisterCache(clear func()) {
	if clear == nil {
		return
	}
	g.mu.Lock()
	g.caches = append(g.caches, clear)
	g.mu.Unlock()
}

// AcquireBuffer returns a pooled scratch buffer for the key, allocating when
// the bucket is empty.
func (g *Governor) AcquireBuffer(key BufferKey) *PixelBuffer {
	return g.pool.acquire(key)
}

// ReleaseBuffer returns a buffer to the pool.
func (g *Governor) ReleaseBuffer(buf *PixelBuffer) {
	g.pool.release(buf)
}

// PoolKeyCount reports the number of distinct keys currently pooled.
func (g *Governor) PoolKeyCount() int {
	return g.pool.keyCount()
}

// ForceCleanup runs the full cascade synchronously: drain the buffer pool,
// clear registered caches, revoke and unregister every active token, then
// yield a few short cycles to let collection catch up.
func (g *Governor) ForceCleanup() {
	g.pool.drain()

	g.mu.Lock()
	caches := append([]func(){}, g.caches...)
	count := len(g.tokens)
	g.tokens = make(map[string]bool)
	g.mu.Unlock()

	for _, clear := range caches {
		clear()
	}
	if count > 0 {
		g.logger.Printf("forced cleanup revoked %d active token(s)", count)
	}

	for i := 0; i < 3; i++ {
		runtime.GC()
		runtime.Gosched()
	}
}

// asyncCleanup runs ForceCleanup in the background at most once at a time.
func (g *Governor) asyncCleanup() {
	if !g.cleaning.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer g.cleaning.Store(false)
		g.ForceCleanup()
	}()
}
