package domain

import (
	"context"
	"time"
)

// Browser opens and closes connections to the remote rendering backend.
// Sessions are never pooled: every render acquires and releases its own.
type Browser interface {
	// Acquire connects to the backend; failures are ConnectionError.
	Acquire(ctx context.Context) (Session, error)
	// Release disconnects s. It is best-effort and never fails.
	Release(s Session)
	// Version reports the backend's product version.
	Version(ctx context.Context) (string, error)
}

// Session is a live connection owned by one render.
type Session interface {
	NewPage() (Page, error)
}

// RequestRewriter maps an outgoing request URL to the URL it should be sent
// to, reporting whether it changed.
type RequestRewriter func(rawURL string) (string, bool)

// Size is a width and height in CSS pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Page is a browser tab within a Session.
type Page interface {
	SetViewport(width, height int64) error
	// InterceptRequests routes every outgoing request through rewrite.
	InterceptRequests(rewrite RequestRewriter) error
	// PersistLocalStorage stores key=value in localStorage before any document script runs.
	PersistLocalStorage(key, value string) error
	// Navigate loads url and waits for network idle. A zero timeout uses the
	// backend default; exceeding the bound is NavigationTimeoutError.
	Navigate(url string, timeout time.Duration) error
	// ElementSize returns the scroll size of the first element matching selector,
	// or a zero Size when the element or its dimensions are missing.
	ElementSize(selector string) (Size, error)
	// IsolateElement replaces the body with a clone of the element matching
	// selector and returns the previous body markup.
	IsolateElement(selector string) (string, error)
	RestoreBody(html string) error
	InjectStyle(css string) error
	PrintToPDF(size Size) ([]byte, error)
	CaptureScreenshot(quality int64) ([]byte, error)
	Close() error
}
