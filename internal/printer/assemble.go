package printer

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"resume-printer/internal/domain"
)

func init() {
	// pdfcpu otherwise creates a config directory under the user's home.
	api.DisableConfigDir()
}

func pdfConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Assemble merges single-page PDF fragments into one document in page order.
// It fails with ErrMissingFragment unless fragments are exactly pages 1..expected.
func Assemble(fragments []domain.PageFragment, expected int) ([]byte, error) {
	if len(fragments) != expected {
		return nil, fmt.Errorf("%w: have %d of %d pages", domain.ErrMissingFragment, len(fragments), expected)
	}
	if expected == 0 {
		return nil, fmt.Errorf("%w: nothing to assemble", domain.ErrMissingFragment)
	}

	readers := make([]io.ReadSeeker, 0, len(fragments))
	for i, f := range fragments {
		if f.Index != i+1 {
			return nil, fmt.Errorf("%w: page %d found at position %d", domain.ErrMissingFragment, f.Index, i+1)
		}
		if len(f.Data) == 0 {
			return nil, fmt.Errorf("%w: page %d is empty", domain.ErrMissingFragment, f.Index)
		}
		readers = append(readers, bytes.NewReader(f.Data))
	}

	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, pdfConfig()); err != nil {
		return nil, fmt.Errorf("merge %d pages: %w", len(fragments), err)
	}
	return out.Bytes(), nil
}

// PageCount returns the number of pages in pdf.
func PageCount(pdf []byte) (int, error) {
	return api.PageCount(bytes.NewReader(pdf), pdfConfig())
}
