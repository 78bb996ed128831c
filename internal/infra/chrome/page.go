package chrome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/chromedp"

	"resume-printer/internal/domain"
	"resume-printer/internal/infra/logging"
)

const cssPixelsPerInch = 96.0

// Page drives one tab through chromedp.
type Page struct {
	ctx            context.Context
	cancel         context.CancelFunc
	defaultTimeout time.Duration
}

var _ domain.Page = (*Page)(nil)

func (p *Page) init(ignoreHTTPSErrors bool) error {
	actions := []chromedp.Action{page.SetLifecycleEventsEnabled(true)}
	if ignoreHTTPSErrors {
		actions = append(actions, security.SetIgnoreCertificateErrors(true))
	}
	if err := chromedp.Run(p.ctx, actions...); err != nil {
		return fmt.Errorf("prepare tab: %w", err)
	}
	return nil
}

// SetViewport emulates a width x height CSS pixel viewport.
func (p *Page) SetViewport(width, height int64) error {
	return chromedp.Run(p.ctx, chromedp.EmulateViewport(width, height))
}

// InterceptRequests pauses every request and continues it at the URL rewrite
// returns. A request the rewriter leaves alone is continued unmodified.
func (p *Page) InterceptRequests(rewrite domain.RequestRewriter) error {
	chromedp.ListenTarget(p.ctx, func(ev any) {
		e, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		// Listeners must not block the event loop.
		go func() {
			ctx := cdp.WithExecutor(p.ctx, chromedp.FromContext(p.ctx).Target)
			cont := fetch.ContinueRequest(e.RequestID)
			if e.Request != nil {
				if target, changed := rewrite(e.Request.URL); changed {
					logging.Debug("Rewriting request", "from", e.Request.URL, "to", target)
					cont = cont.WithURL(target)
				}
			}
			if err := cont.Do(ctx); err != nil && !IsSessionInterrupted(err) {
				logging.Warn("Continue request failed", "error", err)
			}
		}()
	})
	return chromedp.Run(p.ctx, fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}}))
}

// PersistLocalStorage registers a script that stores key=value before any
// document script runs, so the next navigation can read it.
func (p *Page) PersistLocalStorage(key, value string) error {
	script, err := callScript("(k, v) => window.localStorage.setItem(k, v)", key, value)
	if err != nil {
		return err
	}
	return chromedp.Run(p.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	}))
}

// Navigate loads url and waits for the main frame's networkIdle lifecycle event.
func (p *Page) Navigate(url string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	var (
		mu    sync.Mutex
		idle  = map[cdp.LoaderID]bool{}
		ready = make(chan struct{}, 1)
	)
	chromedp.ListenTarget(ctx, func(ev any) {
		e, ok := ev.(*page.EventLifecycleEvent)
		if !ok || e.Name != "networkIdle" {
			return
		}
		mu.Lock()
		idle[e.LoaderID] = true
		mu.Unlock()
		select {
		case ready <- struct{}{}:
		default:
		}
	})

	var loaderID cdp.LoaderID
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, id, errorText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return errors.New(errorText)
		}
		loaderID = id
		return nil
	}))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.NavigationTimeoutError(fmt.Errorf("navigate %s: %w", url, err))
		}
		return fmt.Errorf("navigate %s: %w", url, err)
	}

	for {
		mu.Lock()
		done := idle[loaderID] || (loaderID == "" && len(idle) > 0)
		mu.Unlock()
		if done {
			return nil
		}
		select {
		case <-ready:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return domain.NavigationTimeoutError(fmt.Errorf("%s not idle after %s", url, timeout))
			}
			return ctx.Err()
		}
	}
}

// ElementSize returns the scroll size of the element matching selector.
func (p *Page) ElementSize(selector string) (domain.Size, error) {
	script, err := callScript(`(sel) => {
		const el = document.querySelector(sel);
		if (!el) return null;
		return { width: el.scrollWidth || 0, height: el.scrollHeight || 0 };
	}`, selector)
	if err != nil {
		return domain.Size{}, err
	}
	var size *domain.Size
	if err := chromedp.Run(p.ctx, chromedp.Evaluate(script, &size)); err != nil {
		return domain.Size{}, err
	}
	if size == nil {
		return domain.Size{}, nil
	}
	return *size, nil
}

// IsolateElement makes a copy of the matching element the only body content.
func (p *Page) IsolateElement(selector string) (string, error) {
	script, err := callScript(`(sel) => {
		const el = document.querySelector(sel);
		if (!el) throw new Error("no element matches " + sel);
		const original = document.body.innerHTML;
		const clone = el.cloneNode(true);
		document.body.innerHTML = "";
		document.body.appendChild(clone);
		return original;
	}`, selector)
	if err != nil {
		return "", err
	}
	var original string
	if err := chromedp.Run(p.ctx, chromedp.Evaluate(script, &original)); err != nil {
		return "", err
	}
	return original, nil
}

// RestoreBody puts html back as the body content.
func (p *Page) RestoreBody(html string) error {
	script, err := callScript(`(html) => { document.body.innerHTML = html; }`, html)
	if err != nil {
		return err
	}
	return chromedp.Run(p.ctx, chromedp.Evaluate(script, nil))
}

// InjectStyle appends a style element carrying css to the head.
func (p *Page) InjectStyle(css string) error {
	script, err := callScript(`(css) => {
		const style = document.createElement("style");
		style.textContent = css;
		document.head.appendChild(style);
	}`, css)
	if err != nil {
		return err
	}
	return chromedp.Run(p.ctx, chromedp.Evaluate(script, nil))
}

// PrintToPDF prints the current document on a single sheet of size CSS pixels
// with backgrounds and no margins. A zero size keeps the browser's paper size.
func (p *Page) PrintToPDF(size domain.Size) ([]byte, error) {
	var buf []byte
	err := chromedp.Run(p.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.PrintToPDF().
			WithPrintBackground(true).
			WithMarginTop(0).
			WithMarginBottom(0).
			WithMarginLeft(0).
			WithMarginRight(0)
		if size.Width > 0 && size.Height > 0 {
			params = params.
				WithPaperWidth(size.Width / cssPixelsPerInch).
				WithPaperHeight(size.Height / cssPixelsPerInch)
		}
		var err error
		buf, _, err = params.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// CaptureScreenshot captures the viewport as a JPEG.
func (p *Page) CaptureScreenshot(quality int64) ([]byte, error) {
	var buf []byte
	err := chromedp.Run(p.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(quality).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Close closes the tab unless it is the session's first one, which goes with the session.
func (p *Page) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// callScript renders an immediately invoked call of fn with JSON-encoded args.
func callScript(fn string, args ...any) (string, error) {
	encoded := make([]byte, 0, 64)
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encode script argument: %w", err)
		}
		if i > 0 {
			encoded = append(encoded, ',')
		}
		encoded = append(encoded, b...)
	}
	return "(" + fn + ")(" + string(encoded) + ")", nil
}
