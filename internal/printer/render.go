package printer

import (
	"context"
	"fmt"
	"time"

	"resume-printer/internal/domain"
	"resume-printer/internal/infra/logging"
)

const (
	// StorageKey is the localStorage key the preview route reads the document from.
	StorageKey = "resume"
	// DefaultPreviewPath is the route that renders a document from localStorage.
	DefaultPreviewPath = "/artboard/preview"

	previewWidth   = 794
	previewHeight  = 1123
	previewQuality = 80
)

// Renderer drives one remote browser session per render.
type Renderer struct {
	browser     domain.Browser
	table       *RewriteTable
	previewPath string
	navTimeout  time.Duration
}

// NewRenderer returns a Renderer navigating to table's public URL plus previewPath.
// navTimeout bounds PDF navigation; zero leaves it to the browser default.
func NewRenderer(browser domain.Browser, table *RewriteTable, previewPath string, navTimeout time.Duration) *Renderer {
	if previewPath == "" {
		previewPath = DefaultPreviewPath
	}
	return &Renderer{
		browser:     browser,
		table:       table,
		previewPath: previewPath,
		navTimeout:  navTimeout,
	}
}

// PreviewURL is where the browser is sent for every render.
func (r *Renderer) PreviewURL() string {
	return r.table.NavigationURL() + r.previewPath
}

// Render produces the artifact for req in mode. The session and page are
// released on every path. Failures are RenderGenerationError.
func (r *Renderer) Render(ctx context.Context, req domain.RenderRequest, mode domain.Mode) (*domain.RenderedArtifact, error) {
	artifact, err := r.render(ctx, req, mode)
	if err != nil {
		logging.Error("Render failed", "mode", string(mode), "id", req.DocumentID, "error", err)
		return nil, domain.RenderGenerationError(err)
	}
	return artifact, nil
}

func (r *Renderer) render(ctx context.Context, req domain.RenderRequest, mode domain.Mode) (*domain.RenderedArtifact, error) {
	if err := req.Validate(mode); err != nil {
		return nil, err
	}

	session, err := r.browser.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer r.browser.Release(session)

	pg, err := session.NewPage()
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer func() {
		if cerr := pg.Close(); cerr != nil {
			logging.Debug("Page close failed", "error", cerr)
		}
	}()

	if r.table.Active() {
		if err := pg.InterceptRequests(r.table.Rewrite); err != nil {
			return nil, fmt.Errorf("intercept requests: %w", err)
		}
	}
	if err := pg.PersistLocalStorage(StorageKey, string(req.Data)); err != nil {
		return nil, fmt.Errorf("persist document: %w", err)
	}

	if mode == domain.ModeImage {
		return r.capturePreview(pg)
	}
	return r.capturePages(pg, req)
}

func (r *Renderer) capturePreview(pg domain.Page) (*domain.RenderedArtifact, error) {
	if err := pg.SetViewport(previewWidth, previewHeight); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}
	if err := pg.Navigate(r.PreviewURL(), 0); err != nil {
		return nil, err
	}
	img, err := pg.CaptureScreenshot(previewQuality)
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return &domain.RenderedArtifact{
		Mode:        domain.ModeImage,
		ContentType: domain.ModeImage.ContentType(),
		Data:        img,
		PageCount:   1,
	}, nil
}

func (r *Renderer) capturePages(pg domain.Page, req domain.RenderRequest) (*domain.RenderedArtifact, error) {
	if err := pg.Navigate(r.PreviewURL(), r.navTimeout); err != nil {
		return nil, err
	}

	fragments := make([]domain.PageFragment, 0, req.PageCount)
	for i := 1; i <= req.PageCount; i++ {
		buf, err := capturePage(pg, i, req.Style)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		fragments = append(fragments, domain.PageFragment{Index: i, Data: buf})
	}

	pdf, err := Assemble(fragments, req.PageCount)
	if err != nil {
		return nil, err
	}
	return &domain.RenderedArtifact{
		Mode:        domain.ModePDF,
		ContentType: domain.ModePDF.ContentType(),
		Data:        pdf,
		PageCount:   len(fragments),
	}, nil
}

// PageSelector matches the element of logical page index on the preview route.
func PageSelector(index int) string {
	return fmt.Sprintf(`[data-page="%d"]`, index)
}

// capturePage isolates page index in the body, prints it at its own size and
// puts the original body back.
func capturePage(pg domain.Page, index int, style domain.CustomStyle) ([]byte, error) {
	selector := PageSelector(index)

	size, err := pg.ElementSize(selector)
	if err != nil {
		return nil, fmt.Errorf("measure: %w", err)
	}
	original, err := pg.IsolateElement(selector)
	if err != nil {
		return nil, fmt.Errorf("isolate: %w", err)
	}
	if style.Enabled && style.CSS != "" {
		if err := pg.InjectStyle(style.CSS); err != nil {
			return nil, fmt.Errorf("inject style: %w", err)
		}
	}
	buf, err := pg.PrintToPDF(size)
	if err != nil {
		return nil, fmt.Errorf("print: %w", err)
	}
	if err := pg.RestoreBody(original); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	return buf, nil
}
