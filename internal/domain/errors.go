package domain

import "errors"

var (
	// ErrConnection signals that the rendering backend is unreachable or rejected the token.
	ErrConnection = errors.New("cannot connect to rendering backend")
	// ErrNavigationTimeout signals that the preview page did not become idle in time.
	ErrNavigationTimeout = errors.New("preview page did not become idle in time")
	// ErrRenderGeneration covers every other failure while capturing, assembling or uploading.
	ErrRenderGeneration = errors.New("render generation failed")
	// ErrMissingFragment signals that a page fragment is absent or out of order at assembly.
	ErrMissingFragment = errors.New("page fragment missing")
	// ErrInvalidRequest signals a render request that cannot be printed.
	ErrInvalidRequest = errors.New("invalid render request")

	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrTokenStoreNotReady signals that API tokens have not been loaded yet,
	// typically while the database is still starting.
	ErrTokenStoreNotReady = errors.New("token store not ready")
)

// PrinterError ties a failure to its kind in the taxonomy. errors.Is matches
// both the kind and anything the cause wraps.
type PrinterError struct {
	Kind error
	Err  error
}

func (e *PrinterError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *PrinterError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ConnectionError wraps err as ErrConnection.
func ConnectionError(err error) error { return wrap(ErrConnection, err) }

// NavigationTimeoutError wraps err as ErrNavigationTimeout.
func NavigationTimeoutError(err error) error { return wrap(ErrNavigationTimeout, err) }

// RenderGenerationError wraps err as ErrRenderGeneration, keeping the original
// message and any kind it already carries.
func RenderGenerationError(err error) error { return wrap(ErrRenderGeneration, err) }

func wrap(kind, err error) error {
	if errors.Is(err, kind) {
		return err
	}
	return &PrinterError{Kind: kind, Err: err}
}
