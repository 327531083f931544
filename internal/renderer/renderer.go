// Package renderer drives a headless browser tab through a full page load
// and returns the rendered markup for crawler responses.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/crawlable/edge/internal/browser"
	"github.com/crawlable/edge/internal/config"
	"github.com/crawlable/edge/internal/htmlutil"
)

// networkIdle is the lifecycle event that marks a settled page: no more than
// two in-flight network connections for 500ms.
const networkIdle = "networkIdle"

// extractionReserve is carved out of the navigation budget so that a page
// which never goes idle still leaves time to extract whatever rendered.
const extractionReserve = 5 * time.Second

// Result is a completed render.
type Result struct {
	HTML     string
	Elapsed  time.Duration
	Stripped bool
}

// Renderer renders pages in tabs of the shared browser process.
type Renderer struct {
	browsers *browser.Manager
	config   config.RenderConfig
	logger   *zap.Logger
}

func New(browsers *browser.Manager, cfg config.RenderConfig, logger *zap.Logger) *Renderer {
	return &Renderer{
		browsers: browsers,
		config:   cfg,
		logger:   logger,
	}
}

// Render loads targetURL in a fresh tab, waits for the page to settle, and
// extracts the document HTML. The whole operation is bounded by the
// configured navigation timeout; on any failure the caller is expected to
// fall back to proxying the origin directly.
func (r *Renderer) Render(ctx context.Context, targetURL, requestID string) (*Result, error) {
	start := time.Now()

	handle, err := r.browsers.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowser, err)
	}
	defer handle.Release()

	ctx, cancel := context.WithTimeout(ctx, r.config.NavTimeout)
	defer cancel()

	tabCtx, closeTab, err := handle.NewTab(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowser, err)
	}
	defer closeTab()

	// Kill the tab when the deadline fires so a hung navigation cannot
	// outlive the request.
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	var html string
	err = chromedp.Run(tabCtx, r.buildTasks(targetURL, requestID, &html))

	// The deadline takes priority; chromedp reports it as a cancelled tab.
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s", ErrHardTimeout, r.config.NavTimeout)
	}
	if err != nil {
		return nil, err
	}

	result := &Result{HTML: html, Elapsed: time.Since(start)}

	if r.config.StripScripts {
		cleaned, stripped := htmlutil.StripScripts(html)
		if stripped {
			result.HTML = cleaned
			result.Stripped = true
			r.logger.Debug("Scripts stripped from rendered HTML",
				zap.String("request_id", requestID),
				zap.String("url", targetURL),
				zap.Int("size_before", len(html)),
				zap.Int("size_after", len(cleaned)))
		}
	}

	r.logger.Info("Page rendered",
		zap.String("request_id", requestID),
		zap.String("url", targetURL),
		zap.Int("html_size", len(result.HTML)),
		zap.Duration("render_time", result.Elapsed))

	return result, nil
}

// buildTasks is the chromedp sequence for one render: identify as the render
// agent, navigate, wait for network idle, give the app a best-effort chance
// to mount its root element, settle, then pull the DOM.
func (r *Renderer) buildTasks(targetURL, requestID string, out *string) chromedp.Tasks {
	return chromedp.Tasks{
		network.Enable(),
		enableLifecycle(),
		emulation.SetUserAgentOverride(r.config.UserAgent),

		r.navigateAndWait(targetURL, requestID),

		chromedp.WaitReady("body", chromedp.ByQuery),

		r.awaitReadySelector(requestID),
		r.settle(),

		extractHTML(out),

		page.Close(),
	}
}

// navigateAndWait navigates and blocks until the networkIdle lifecycle event
// for this navigation's frame and loader. The wait is soft: when it expires
// the render continues with whatever the page has produced.
func (r *Renderer) navigateAndWait(targetURL, requestID string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		frameID, loaderID, _, _, err := page.Navigate(targetURL).Do(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNavigate, err)
		}

		softWait := r.config.NavTimeout - extractionReserve
		if softWait <= 0 {
			softWait = r.config.NavTimeout / 2
		}

		err = waitForEvent(ctx, networkIdle, string(frameID), string(loaderID), softWait)
		if errors.Is(err, ErrWaitTimeout) {
			// The page kept the network busy the whole time; extract
			// whatever has rendered so far.
			r.logger.Debug("Network never went idle, extracting current DOM",
				zap.String("request_id", requestID),
				zap.String("url", targetURL))
			return nil
		}
		return err
	}
}

// awaitReadySelector waits briefly for the configured root selector. SPA
// frameworks mount into it after networkIdle; pages without the element are
// served as-is once the wait expires.
func (r *Renderer) awaitReadySelector(requestID string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		if r.config.ReadySelector == "" || r.config.ReadyTimeout <= 0 {
			return nil
		}

		waitCtx, cancel := context.WithTimeout(ctx, r.config.ReadyTimeout)
		defer cancel()

		err := chromedp.WaitReady(r.config.ReadySelector, chromedp.ByQuery).Do(waitCtx)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			r.logger.Debug("Ready selector did not appear",
				zap.String("request_id", requestID),
				zap.String("selector", r.config.ReadySelector),
				zap.Duration("waited", r.config.ReadyTimeout))
		}
		return nil
	}
}

// settle gives late async work (fonts, final XHR paints) a fixed window to
// land before extraction.
func (r *Renderer) settle() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		if r.config.SettleDelay <= 0 {
			return nil
		}
		select {
		case <-time.After(r.config.SettleDelay):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// waitForEvent blocks until the named lifecycle event arrives for the given
// frame and loader, the soft timeout fires, or the context ends.
func waitForEvent(ctx context.Context, eventName, frameID, loaderID string, timeout time.Duration) error {
	ch := make(chan struct{})

	listenerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chromedp.ListenTarget(listenerCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok {
			// Match frame AND loader so a redirect's events are not
			// mistaken for the final navigation's.
			if string(e.FrameID) == frameID && string(e.LoaderID) == loaderID {
				if string(e.Name) == eventName {
					cancel()
					close(ch)
				}
			}
		}
	})

	select {
	case <-ch:
		return nil
	case <-time.After(timeout):
		return ErrWaitTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// extractHTML pulls the document's outer HTML, retrying transient CDP
// failures that happen when extraction races a late DOM mutation.
func extractHTML(out *string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		var lastErr error

		for attempt := 0; attempt < 3; attempt++ {
			rootNode, err := dom.GetDocument().Do(ctx)
			if err != nil {
				lastErr = err
				time.Sleep(300 * time.Millisecond)
				continue
			}

			html, err := dom.GetOuterHTML().WithNodeID(rootNode.NodeID).Do(ctx)
			if err != nil {
				lastErr = err
				time.Sleep(300 * time.Millisecond)
				continue
			}

			*out = html
			return nil
		}

		return fmt.Errorf("%w after 3 attempts: %v", ErrExtractHTML, lastErr)
	}
}

// enableLifecycle turns on page lifecycle events, required before Navigate
// for frame-scoped event matching.
func enableLifecycle() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		if err := page.Enable().Do(ctx); err != nil {
			return err
		}
		return page.SetLifecycleEventsEnabled(true).Do(ctx)
	}
}
