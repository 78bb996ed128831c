package printer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-printer/internal/config"
	"resume-printer/internal/domain"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, RandomizationFactor: 0.5}
}

func newTestService(browser *fakeBrowser, up *fakeUploader, cache URLCache, attempts int) *Service {
	r := NewRenderer(browser, publicTable(), "", time.Second)
	return NewService(browser, r, up, cache, fastPolicy(attempts))
}

func TestPrintResume_UploadsUnderResumesWithTitle(t *testing.T) {
	browser := &fakeBrowser{}
	up := &fakeUploader{}
	svc := newTestService(browser, up, nil, 3)

	url, err := svc.PrintResume(context.Background(), resumeRequest(t, 2, nil))
	require.NoError(t, err)
	assert.Equal(t, "https://storage.test/user-1/resumes/Ada Resume", url)

	require.Len(t, up.uploads, 1)
	assert.Equal(t, upload{owner: "user-1", category: domain.CategoryResumes, identifier: "Ada Resume", size: up.uploads[0].size}, up.uploads[0])
	assert.Positive(t, up.uploads[0].size)
	assert.Equal(t, 1, browser.acquired)
}

func TestPrintPreview_UploadsUnderPreviewsWithDocumentID(t *testing.T) {
	browser := &fakeBrowser{}
	up := &fakeUploader{}
	svc := newTestService(browser, up, nil, 3)

	url, err := svc.PrintPreview(context.Background(), resumeRequest(t, 2, nil))
	require.NoError(t, err)
	assert.Equal(t, "https://storage.test/user-1/previews/res-1", url)
	require.Len(t, up.uploads, 1)
	assert.Equal(t, domain.CategoryPreviews, up.uploads[0].category)
	assert.Equal(t, "res-1", up.uploads[0].identifier)
	assert.Equal(t, []int64{80}, browser.lastPage().qualities)
}

func TestPrint_RetriesTransientFailure(t *testing.T) {
	browser := &fakeBrowser{acquireErrs: []error{errors.New("socket hang up"), nil}}
	up := &fakeUploader{}
	svc := newTestService(browser, up, nil, 3)

	url, err := svc.PrintResume(context.Background(), resumeRequest(t, 1, nil))
	require.NoError(t, err)
	assert.NotEmpty(t, url)
	assert.Equal(t, 2, browser.acquired)
	assert.Len(t, up.uploads, 1)
}

func TestPrint_SurfacesLastErrorAfterAllAttempts(t *testing.T) {
	last := errors.New("third refusal")
	browser := &fakeBrowser{acquireErrs: []error{errors.New("first"), errors.New("second"), last}}
	up := &fakeUploader{}
	svc := newTestService(browser, up, nil, 3)

	_, err := svc.PrintResume(context.Background(), resumeRequest(t, 1, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, last)
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.ErrorIs(t, err, domain.ErrRenderGeneration)
	assert.Equal(t, 3, browser.acquired)
	assert.Empty(t, up.uploads)
}

func TestPrint_UploadFailureIsRetried(t *testing.T) {
	browser := &fakeBrowser{}
	up := &fakeUploader{errs: []error{errors.New("503 slow down")}}
	svc := newTestService(browser, up, nil, 2)

	url, err := svc.PrintPreview(context.Background(), resumeRequest(t, 1, nil))
	require.NoError(t, err)
	assert.NotEmpty(t, url)
	assert.Equal(t, 2, browser.acquired)
	assert.Equal(t, 2, browser.released)

	up = &fakeUploader{errs: []error{errors.New("a"), errors.New("access denied")}}
	svc = newTestService(&fakeBrowser{}, up, nil, 2)
	_, err = svc.PrintPreview(context.Background(), resumeRequest(t, 1, nil))
	assert.ErrorIs(t, err, domain.ErrRenderGeneration)
	assert.ErrorContains(t, err, "access denied")
}

func TestPrint_InvalidRequestIsNotAttempted(t *testing.T) {
	browser := &fakeBrowser{}
	svc := newTestService(browser, &fakeUploader{}, nil, 3)

	req := resumeRequest(t, 1, nil)
	req.OwnerID = ""
	_, err := svc.PrintResume(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Equal(t, 0, browser.acquired)
}

func TestPrint_CacheHitSkipsRender(t *testing.T) {
	req := resumeRequest(t, 1, nil)
	cache := &fakeCache{entries: map[string]string{
		URLCacheKey(req, domain.ModePDF): "https://storage.test/cached.pdf",
	}}
	browser := &fakeBrowser{}
	svc := newTestService(browser, &fakeUploader{}, cache, 3)

	url, err := svc.PrintResume(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "https://storage.test/cached.pdf", url)
	assert.Equal(t, 0, browser.acquired)
}

func TestPrint_CacheMissStoresURL(t *testing.T) {
	req := resumeRequest(t, 1, nil)
	cache := &fakeCache{entries: map[string]string{}}
	browser := &fakeBrowser{}
	svc := newTestService(browser, &fakeUploader{}, cache, 3)

	url, err := svc.PrintPreview(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, url, cache.entries[URLCacheKey(req, domain.ModeImage)])

	// A failing cache never fails the print.
	cache.getErr = errors.New("redis down")
	_, err = svc.PrintPreview(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, browser.acquired)
}

func TestURLCacheKey_TracksContent(t *testing.T) {
	a := resumeRequest(t, 1, nil)
	b := resumeRequest(t, 2, nil)

	assert.Contains(t, URLCacheKey(a, domain.ModePDF), "printer:resumes:user-1:res-1:")
	assert.Contains(t, URLCacheKey(a, domain.ModeImage), "printer:previews:user-1:res-1:")
	assert.Equal(t, URLCacheKey(a, domain.ModePDF), URLCacheKey(a, domain.ModePDF))
	assert.NotEqual(t, URLCacheKey(a, domain.ModePDF), URLCacheKey(b, domain.ModePDF))

	styled := a
	styled.Style = domain.CustomStyle{Enabled: true, CSS: "body{}"}
	assert.NotEqual(t, URLCacheKey(a, domain.ModePDF), URLCacheKey(styled, domain.ModePDF))
}

func TestService_Version(t *testing.T) {
	svc := newTestService(&fakeBrowser{version: "HeadlessChrome/126.0"}, &fakeUploader{}, nil, 1)
	v, err := svc.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "HeadlessChrome/126.0", v)

	svc = newTestService(&fakeBrowser{}, &fakeUploader{}, nil, 1)
	_, err = svc.Version(context.Background())
	assert.ErrorIs(t, err, domain.ErrConnection)
}

func TestRetryPolicyFrom(t *testing.T) {
	p := RetryPolicyFrom(config.RetryConfig{Attempts: 5, InitialInterval: time.Second, MaxInterval: 4 * time.Second, RandomizationFactor: 0.25})
	assert.Equal(t, RetryPolicy{Attempts: 5, InitialInterval: time.Second, MaxInterval: 4 * time.Second, RandomizationFactor: 0.25}, p)
}

func TestPrint_StopsWhenContextCanceled(t *testing.T) {
	browser := &fakeBrowser{acquireErrs: []error{errors.New("down"), errors.New("down"), errors.New("down")}}
	svc := NewService(browser, NewRenderer(browser, publicTable(), "", 0), &fakeUploader{},
		nil, RetryPolicy{Attempts: 3, InitialInterval: time.Hour, MaxInterval: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.PrintResume(ctx, resumeRequest(t, 1, nil))
	require.Error(t, err)
	assert.Equal(t, 1, browser.acquired)
}

func TestPrint_DeadlineDuringBackoffKeepsLastError(t *testing.T) {
	refused := errors.New("dial tcp 10.0.0.7:3000: connect: connection refused")
	browser := &fakeBrowser{acquireErrs: []error{refused, refused, refused}}
	svc := NewService(browser, NewRenderer(browser, publicTable(), "", 0), &fakeUploader{},
		nil, RetryPolicy{Attempts: 3, InitialInterval: time.Hour, MaxInterval: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.PrintResume(ctx, resumeRequest(t, 1, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, refused)
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.Contains(t, err.Error(), "connection refused")
}
