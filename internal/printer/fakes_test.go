package printer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"resume-printer/internal/domain"
)

type fakeBrowser struct {
	mu          sync.Mutex
	acquireErrs []error
	pageErr     error
	version     string
	acquired    int
	released    int
	pages       []*fakePage
	configure   func(*fakePage)
}

func (b *fakeBrowser) Acquire(context.Context) (domain.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acquired++
	if len(b.acquireErrs) > 0 {
		err := b.acquireErrs[0]
		b.acquireErrs = b.acquireErrs[1:]
		if err != nil {
			return nil, domain.ConnectionError(err)
		}
	}
	return &fakeSession{browser: b}, nil
}

func (b *fakeBrowser) Release(domain.Session) {
	b.mu.Lock()
	b.released++
	b.mu.Unlock()
}

func (b *fakeBrowser) Version(context.Context) (string, error) {
	if b.version == "" {
		return "", domain.ConnectionError(errors.New("no browser"))
	}
	return b.version, nil
}

func (b *fakeBrowser) lastPage() *fakePage {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pages) == 0 {
		return nil
	}
	return b.pages[len(b.pages)-1]
}

type fakeSession struct {
	browser *fakeBrowser
}

func (s *fakeSession) NewPage() (domain.Page, error) {
	b := s.browser
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pageErr != nil {
		return nil, b.pageErr
	}
	p := &fakePage{storage: map[string]string{}, sizes: map[string]domain.Size{}, failOn: map[string]error{}}
	if b.configure != nil {
		b.configure(p)
	}
	b.pages = append(b.pages, p)
	return p, nil
}

type fakePage struct {
	calls     []string
	storage   map[string]string
	sizes     map[string]domain.Size
	failOn    map[string]error
	rewrite   domain.RequestRewriter
	navigated []string
	timeouts  []time.Duration
	viewport  [2]int64
	printed   []domain.Size
	styles    []string
	qualities []int64
	isolated  string
	closed    int
}

func (p *fakePage) record(call string) error {
	p.calls = append(p.calls, call)
	return p.failOn[call]
}

func (p *fakePage) SetViewport(w, h int64) error {
	p.viewport = [2]int64{w, h}
	return p.record("viewport")
}

func (p *fakePage) InterceptRequests(rewrite domain.RequestRewriter) error {
	p.rewrite = rewrite
	return p.record("intercept")
}

func (p *fakePage) PersistLocalStorage(key, value string) error {
	p.storage[key] = value
	return p.record("storage")
}

func (p *fakePage) Navigate(url string, timeout time.Duration) error {
	p.navigated = append(p.navigated, url)
	p.timeouts = append(p.timeouts, timeout)
	if err := p.record("navigate"); err != nil {
		return domain.NavigationTimeoutError(err)
	}
	return nil
}

func (p *fakePage) ElementSize(selector string) (domain.Size, error) {
	return p.sizes[selector], p.record("size " + selector)
}

func (p *fakePage) IsolateElement(selector string) (string, error) {
	p.isolated = selector
	return "<body>original</body>", p.record("isolate " + selector)
}

func (p *fakePage) RestoreBody(html string) error {
	if html != "<body>original</body>" {
		return fmt.Errorf("unexpected body %q", html)
	}
	return p.record("restore " + p.isolated)
}

func (p *fakePage) InjectStyle(css string) error {
	p.styles = append(p.styles, css)
	return p.record("style " + p.isolated)
}

// PrintToPDF returns a one-page PDF whose width encodes the capture order.
func (p *fakePage) PrintToPDF(size domain.Size) ([]byte, error) {
	p.printed = append(p.printed, size)
	if err := p.record("print " + p.isolated); err != nil {
		return nil, err
	}
	return singlePagePDF(100*len(p.printed), 842), nil
}

func (p *fakePage) CaptureScreenshot(quality int64) ([]byte, error) {
	p.qualities = append(p.qualities, quality)
	if err := p.record("screenshot"); err != nil {
		return nil, err
	}
	return []byte{0xff, 0xd8, 0xff, 0xd9}, nil
}

func (p *fakePage) Close() error {
	p.closed++
	return nil
}

type upload struct {
	owner      string
	category   domain.Category
	identifier string
	size       int
}

type fakeUploader struct {
	mu      sync.Mutex
	errs    []error
	uploads []upload
}

func (u *fakeUploader) UploadObject(_ context.Context, ownerID string, category domain.Category, data []byte, identifier string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.errs) > 0 {
		err := u.errs[0]
		u.errs = u.errs[1:]
		if err != nil {
			return "", err
		}
	}
	u.uploads = append(u.uploads, upload{owner: ownerID, category: category, identifier: identifier, size: len(data)})
	return fmt.Sprintf("https://storage.test/%s/%s/%s", ownerID, category, identifier), nil
}

type fakeCache struct {
	entries map[string]string
	getErr  error
	sets    int
}

func (c *fakeCache) Get(_ context.Context, key string) (string, bool, error) {
	if c.getErr != nil {
		return "", false, c.getErr
	}
	url, ok := c.entries[key]
	return url, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key, url string) error {
	c.entries[key] = url
	c.sets++
	return nil
}
