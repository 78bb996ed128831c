package chrome

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"resume-printer/internal/config"
	"resume-printer/internal/domain"
	"resume-printer/internal/infra/logging"
)

// DefaultTimeout bounds connecting and idle navigation when nothing else is configured.
const DefaultTimeout = 30 * time.Second

// Connector opens one remote browser connection per session. Sessions are not
// pooled: every Acquire dials the websocket endpoint and every Release hangs up.
type Connector struct {
	endpoint          string
	token             string
	ignoreHTTPSErrors bool
	defaultTimeout    time.Duration

	mu              sync.Mutex
	acquired        uint64
	released        uint64
	connectFailures uint64
	lastFailure     time.Time
}

// Stats is a snapshot of the connector counters.
type Stats struct {
	Endpoint          string    `json:"endpoint"`
	Acquired          uint64    `json:"acquired"`
	Released          uint64    `json:"released"`
	Active            uint64    `json:"active"`
	ConnectFailures   uint64    `json:"connect_failures"`
	LastFailure       time.Time `json:"last_failure,omitempty"`
	IgnoreHTTPSErrors bool      `json:"ignore_https_errors"`
	TimeoutSecs       int       `json:"timeout_secs"`
}

// NewConnector builds a Connector for the configured endpoint and token.
func NewConnector(cfg config.ChromeConfig) (*Connector, error) {
	endpoint, err := Endpoint(cfg.URL, cfg.Token)
	if err != nil {
		return nil, err
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Connector{
		endpoint:          endpoint,
		token:             cfg.Token,
		ignoreHTTPSErrors: cfg.IgnoreHTTPSErrors,
		defaultTimeout:    timeout,
	}, nil
}

// Endpoint appends the access token to the websocket URL as the token query parameter.
// The URL is dialed as is, so only ws and wss are accepted.
func Endpoint(rawURL, token string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid chrome url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid chrome url %q: scheme must be ws or wss", redact(rawURL))
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// redact hides the token when the endpoint is logged or reported.
func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	if q := u.Query(); q.Has("token") {
		q.Set("token", "redacted")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// redactedError carries a cause whose message had the access token removed.
// Unwrap keeps errors.Is working on the cause.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// scrub removes the endpoint token from err's message. chromedp quotes the
// dialed URL in its errors, token included.
func (c *Connector) scrub(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ReplaceAll(err.Error(), c.endpoint, redact(c.endpoint))
	if c.token != "" {
		msg = strings.ReplaceAll(msg, "token="+url.QueryEscape(c.token), "token=redacted")
	}
	if msg == err.Error() {
		return err
	}
	return &redactedError{msg: msg, err: err}
}

type session struct {
	conn          *Connector
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu        sync.Mutex
	firstUsed bool
	once      sync.Once
}

// Acquire dials the remote browser and opens its first tab. Failures are ConnectionError.
func (c *Connector) Acquire(ctx context.Context) (domain.Session, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, c.endpoint, chromedp.NoModifyURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser, so its context must outlive this call.
	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(browserCtx) }()

	var err error
	select {
	case err = <-errc:
	case <-time.After(c.defaultTimeout):
		err = fmt.Errorf("no response within %s", c.defaultTimeout)
	}
	if err != nil {
		browserCancel()
		allocCancel()
		c.recordFailure()
		err = c.scrub(err)
		logging.Warn("Chrome connection failed", "endpoint", redact(c.endpoint), "error", err)
		return nil, domain.ConnectionError(fmt.Errorf("connect to %s: %w", redact(c.endpoint), err))
	}

	c.mu.Lock()
	c.acquired++
	c.mu.Unlock()
	logging.Debug("Chrome session acquired", "endpoint", redact(c.endpoint))

	return &session{
		conn:          c,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Release closes the session's tabs and then its connection. Releasing twice,
// or releasing a session this connector did not create, does nothing.
func (c *Connector) Release(s domain.Session) {
	sess, ok := s.(*session)
	if !ok || sess == nil || sess.conn != c {
		return
	}
	sess.once.Do(func() {
		sess.browserCancel()
		sess.allocCancel()
		c.mu.Lock()
		c.released++
		c.mu.Unlock()
		logging.Debug("Chrome session released")
	})
}

// Version connects, asks the browser for its product string and disconnects.
func (c *Connector) Version(ctx context.Context) (string, error) {
	s, err := c.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer c.Release(s)

	sess := s.(*session)
	var product string
	err = chromedp.Run(sess.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		_, product, _, _, _, err = browser.GetVersion().Do(cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser))
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("get browser version: %w", c.scrub(err))
	}
	return product, nil
}

// Stats reports session counters for observability.
func (c *Connector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Endpoint:          redact(c.endpoint),
		Acquired:          c.acquired,
		Released:          c.released,
		Active:            c.acquired - c.released,
		ConnectFailures:   c.connectFailures,
		LastFailure:       c.lastFailure,
		IgnoreHTTPSErrors: c.ignoreHTTPSErrors,
		TimeoutSecs:       int(c.defaultTimeout / time.Second),
	}
}

func (c *Connector) recordFailure() {
	c.mu.Lock()
	c.connectFailures++
	c.lastFailure = time.Now()
	c.mu.Unlock()
}

// NewPage returns the session's first tab, then a fresh tab on each later call.
func (s *session) NewPage() (domain.Page, error) {
	s.mu.Lock()
	reuse := !s.firstUsed
	s.firstUsed = true
	s.mu.Unlock()

	ctx, cancel := s.browserCtx, context.CancelFunc(nil)
	if !reuse {
		ctx, cancel = chromedp.NewContext(s.browserCtx)
	}
	p := &Page{ctx: ctx, cancel: cancel, defaultTimeout: s.conn.defaultTimeout}
	if err := p.init(s.conn.ignoreHTTPSErrors); err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, err
	}
	return p, nil
}

// IsSessionInterrupted reports whether err means the browser connection or
// tab went away mid-render rather than the page misbehaving.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, chromedp.ErrInvalidContext) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"target closed", "session closed", "websocket: close", "use of closed network connection", "connection reset"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
