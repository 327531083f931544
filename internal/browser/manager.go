// Package browser owns the single shared headless Chrome process. The
// process is launched lazily on first render, reused by every subsequent
// request through isolated tab contexts, and torn down once on shutdown.
package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// State describes the browser process as reported by health checks.
type State string

const (
	StateRunning    State = "running"
	StateNotStarted State = "not started"
)

// Manager guarantees at most one live browser process and hands out isolated
// tab contexts for rendering. Concurrent callers arriving during a launch
// await the same in-flight launch instead of starting a second one.
type Manager struct {
	config *Config
	logger *zap.Logger

	mu            sync.Mutex
	launched      bool
	shutdown      bool
	launching     *launchAttempt // non-nil while a launch is in flight
	allocatorStop context.CancelFunc
	browserCtx    context.Context
	browserStop   context.CancelFunc

	tabs       chan struct{} // tab slot semaphore
	relaunches atomic.Int64

	// Injection points for tests; nil means real chromedp.
	launchFn func() (context.CancelFunc, context.Context, context.CancelFunc, error)
	probeFn  func(ctx context.Context) error
}

// launchAttempt coalesces concurrent launch requests: err is written before
// done is closed, so every waiter observes the same outcome.
type launchAttempt struct {
	done chan struct{}
	err  error
}

// Handle is the shared browser handle. Pages are opened per request through
// NewTab and closed individually; Release is a no-op because the underlying
// process is long-lived.
type Handle struct {
	manager *Manager
	ctx     context.Context
}

// NewManager creates a Manager. The browser is not launched until the first
// Acquire call.
func NewManager(config *Config, logger *zap.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	limit := config.TabLimit()
	logger.Info("Browser manager initialized",
		zap.Int("tab_limit", limit),
		zap.String("exec_path", config.ExecPath))

	tabs := make(chan struct{}, limit)
	for i := 0; i < limit; i++ {
		tabs <- struct{}{}
	}

	return &Manager{
		config: config,
		logger: logger,
		tabs:   tabs,
	}, nil
}

// Acquire returns the shared browser handle, launching the process if needed.
// A handle that fails the liveness probe is terminated and relaunched before
// being returned, so a crashed browser heals on the next request. A failed
// launch does not poison the manager; the next Acquire retries.
func (m *Manager) Acquire(ctx context.Context) (*Handle, error) {
	for {
		m.mu.Lock()
		if m.shutdown {
			m.mu.Unlock()
			return nil, ErrShutdown
		}

		if m.launched {
			browserCtx := m.browserCtx
			m.mu.Unlock()

			if m.probe(browserCtx) == nil {
				return &Handle{manager: m, ctx: browserCtx}, nil
			}

			m.logger.Warn("Browser failed liveness probe, relaunching")
			m.terminateLocked(browserCtx)
			continue
		}

		if m.launching != nil {
			// A launch is already in flight; await its outcome.
			attempt := m.launching
			m.mu.Unlock()

			select {
			case <-attempt.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if attempt.err != nil {
				return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, attempt.err)
			}
			continue
		}

		// This caller performs the launch.
		attempt := &launchAttempt{done: make(chan struct{})}
		m.launching = attempt
		m.mu.Unlock()

		err := m.launch()

		m.mu.Lock()
		m.launching = nil
		if err == nil {
			m.launched = true
		}
		m.mu.Unlock()

		attempt.err = err
		close(attempt.done)

		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
		}
	}
}

// State reports whether the browser process is running, without launching it.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.launched {
		return StateRunning
	}
	return StateNotStarted
}

// Relaunches returns how many times a dead browser was replaced.
func (m *Manager) Relaunches() int64 {
	return m.relaunches.Load()
}

// Shutdown closes the browser process. Idempotent; called once on process
// termination signals.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return nil
	}
	m.shutdown = true

	if !m.launched {
		m.logger.Info("Browser manager shut down (browser was never launched)")
		return nil
	}

	if m.browserStop != nil {
		m.browserStop()
	}
	if m.allocatorStop != nil {
		m.allocatorStop()
	}
	m.launched = false

	m.logger.Info("Browser process closed",
		zap.Int64("relaunches", m.relaunches.Load()))
	return nil
}

// launch starts the browser process. Called without holding mu.
func (m *Manager) launch() error {
	start := time.Now()
	m.logger.Info("Launching headless browser")

	var browserCtx context.Context
	var allocatorStop, browserStop context.CancelFunc
	var err error

	if m.launchFn != nil {
		allocatorStop, browserCtx, browserStop, err = m.launchFn()
	} else {
		allocatorStop, browserCtx, browserStop, err = m.launchChrome()
	}
	if err != nil {
		if browserStop != nil {
			browserStop()
		}
		if allocatorStop != nil {
			allocatorStop()
		}
		m.logger.Error("Browser launch failed", zap.Error(err))
		return err
	}

	m.mu.Lock()
	m.allocatorStop = allocatorStop
	m.browserCtx = browserCtx
	m.browserStop = browserStop
	m.mu.Unlock()

	m.logger.Info("Headless browser launched",
		zap.Duration("launch_time", time.Since(start)))
	return nil
}

// launchChrome builds the allocator with the hardened flag set and starts the
// process. Sandboxing is disabled because the host container is isolated.
func (m *Manager) launchChrome() (context.CancelFunc, context.Context, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("single-process", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
	)
	if m.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.config.ExecPath))
	}

	allocatorCtx, allocatorStop := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserStop := chromedp.NewContext(allocatorCtx)

	// Starts the process without navigating anywhere
	if err := chromedp.Run(browserCtx); err != nil {
		browserStop()
		allocatorStop()
		return nil, nil, nil, err
	}

	return allocatorStop, browserCtx, browserStop, nil
}

// probe checks that the browser process still answers CDP commands.
func (m *Manager) probe(browserCtx context.Context) error {
	ctx, cancel := context.WithTimeout(browserCtx, m.config.ProbeTimeout)
	defer cancel()

	if m.probeFn != nil {
		return m.probeFn(ctx)
	}

	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, _, _, _, err := cdpbrowser.GetVersion().Do(ctx)
		return err
	}))
}

// terminateLocked tears down a dead browser if it is still the current one,
// so the next Acquire iteration triggers a fresh launch.
func (m *Manager) terminateLocked(deadCtx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.launched || m.browserCtx != deadCtx {
		// Someone else already replaced it
		return
	}

	if m.browserStop != nil {
		m.browserStop()
	}
	if m.allocatorStop != nil {
		m.allocatorStop()
	}
	m.launched = false
	m.relaunches.Add(1)
}

// NewTab opens an isolated tab context on the shared browser, bounded by the
// tab semaphore. The returned cancel closes the tab and frees the slot; it
// must be called on every path, including errors.
func (h *Handle) NewTab(ctx context.Context) (context.Context, context.CancelFunc, error) {
	select {
	case <-h.manager.tabs:
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("%w: %v", ErrTabWait, ctx.Err())
	}

	tabCtx, tabCancel := chromedp.NewContext(h.ctx)

	var once sync.Once
	release := func() {
		once.Do(func() {
			tabCancel()
			h.manager.tabs <- struct{}{}
		})
	}
	return tabCtx, release, nil
}

// Release is a no-op for the shared handle; pages are closed individually and
// the process itself is long-lived.
func (h *Handle) Release() {}
