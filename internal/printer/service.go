package printer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"resume-printer/internal/config"
	"resume-printer/internal/domain"
	"resume-printer/internal/infra/logging"
)

// Uploader stores a rendered artifact and returns its retrievable URL.
type Uploader interface {
	UploadObject(ctx context.Context, ownerID string, category domain.Category, data []byte, identifier string) (string, error)
}

// URLCache remembers the URL of an artifact already uploaded for the same document.
type URLCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, url string) error
}

// RetryPolicy bounds the attempts of a print. Attempts counts the first try.
type RetryPolicy struct {
	Attempts            int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	RandomizationFactor float64
}

// RetryPolicyFrom maps configuration onto a RetryPolicy.
func RetryPolicyFrom(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		Attempts:            cfg.Attempts,
		InitialInterval:     cfg.InitialInterval,
		MaxInterval:         cfg.MaxInterval,
		RandomizationFactor: cfg.RandomizationFactor,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.InitialInterval),
		backoff.WithRandomizationFactor(p.RandomizationFactor),
		backoff.WithMaxInterval(p.MaxInterval),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Service prints documents: render, upload, retry the whole attempt on failure.
type Service struct {
	browser  domain.Browser
	renderer *Renderer
	uploader Uploader
	cache    URLCache
	policy   RetryPolicy
}

// NewService wires a Service. cache may be nil.
func NewService(browser domain.Browser, renderer *Renderer, uploader Uploader, cache URLCache, policy RetryPolicy) *Service {
	return &Service{
		browser:  browser,
		renderer: renderer,
		uploader: uploader,
		cache:    cache,
		policy:   policy,
	}
}

// PrintResume renders req as a merged PDF and returns its URL.
func (s *Service) PrintResume(ctx context.Context, req domain.RenderRequest) (string, error) {
	return s.print(ctx, req, domain.ModePDF)
}

// PrintPreview renders the first page of req as a JPEG and returns its URL.
func (s *Service) PrintPreview(ctx context.Context, req domain.RenderRequest) (string, error) {
	return s.print(ctx, req, domain.ModeImage)
}

// Version reports the rendering backend's product version.
func (s *Service) Version(ctx context.Context) (string, error) {
	return s.browser.Version(ctx)
}

func (s *Service) print(ctx context.Context, req domain.RenderRequest, mode domain.Mode) (string, error) {
	if err := req.Validate(mode); err != nil {
		return "", err
	}
	start := time.Now()

	var key string
	if s.cache != nil {
		key = URLCacheKey(req, mode)
		url, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			logging.Warn("URL cache read failed", "key", key, "error", err)
		case ok:
			logging.Info("URL cache hit", "mode", string(mode), "id", req.DocumentID)
			return url, nil
		}
	}

	attempt := 0
	pages := 0
	var lastErr error
	url, err := backoff.RetryNotifyWithData(func() (string, error) {
		attempt++
		artifact, err := s.renderer.Render(ctx, req, mode)
		if err != nil {
			lastErr = err
			if errors.Is(err, domain.ErrInvalidRequest) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		pages = artifact.PageCount

		url, err := s.uploader.UploadObject(ctx, req.OwnerID, mode.Category(), artifact.Data, req.Identifier(mode))
		if err != nil {
			lastErr = domain.RenderGenerationError(fmt.Errorf("upload %s: %w", mode.Category(), err))
			return "", lastErr
		}
		return url, nil
	}, s.policy.backOff(ctx), func(err error, next time.Duration) {
		logging.Warn("Print attempt failed, retrying",
			"attempt", attempt, "title", req.Title, "id", req.DocumentID, "mode", string(mode), "retry_in", next, "error", err)
	})
	if err != nil {
		// The backoff returns only the context error when the deadline ends the wait.
		if lastErr != nil && err != lastErr && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			err = fmt.Errorf("%w; last attempt: %w", err, lastErr)
		}
		logging.Error("Print failed", "attempts", attempt, "title", req.Title, "id", req.DocumentID, "mode", string(mode), "error", err)
		return "", err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, url); err != nil {
			logging.Warn("URL cache write failed", "key", key, "error", err)
		}
	}
	logging.Debug("Printed", "mode", string(mode), "id", req.DocumentID, "pages", pages, "attempts", attempt, "duration", time.Since(start))
	return url, nil
}

// URLCacheKey identifies the artifact of req in mode by owner, document and content.
func URLCacheKey(req domain.RenderRequest, mode domain.Mode) string {
	h := sha256.New()
	h.Write(req.Data)
	h.Write([]byte{0})
	if req.Style.Enabled {
		h.Write([]byte(req.Style.CSS))
	}
	h.Write([]byte{0})
	h.Write([]byte(req.Title))
	return fmt.Sprintf("printer:%s:%s:%s:%s", mode.Category(), req.OwnerID, req.DocumentID, hex.EncodeToString(h.Sum(nil)))
}
