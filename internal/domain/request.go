package domain

import (
	"encoding/json"
	"fmt"
)

// Mode selects the artifact a render produces.
type Mode string

const (
	ModePDF   Mode = "pdf"
	ModeImage Mode = "image"
)

// Category is the storage namespace an artifact is uploaded under.
type Category string

const (
	CategoryResumes  Category = "resumes"
	CategoryPreviews Category = "previews"
)

// Category returns where artifacts of this mode are stored.
func (m Mode) Category() Category {
	if m == ModeImage {
		return CategoryPreviews
	}
	return CategoryResumes
}

// ContentType returns the MIME type of artifacts of this mode.
func (m Mode) ContentType() string {
	if m == ModeImage {
		return "image/jpeg"
	}
	return "application/pdf"
}

// Extension returns the file extension of artifacts of this mode, without the dot.
func (m Mode) Extension() string {
	if m == ModeImage {
		return "jpg"
	}
	return "pdf"
}

// CustomStyle is the user stylesheet applied before each page is captured.
type CustomStyle struct {
	Enabled bool
	CSS     string
}

// RenderRequest is the immutable input of one render.
type RenderRequest struct {
	DocumentID string
	OwnerID    string
	Title      string
	PageCount  int
	// Data is the serialized document the preview route hydrates itself from.
	Data  json.RawMessage
	Style CustomStyle
}

// Identifier names the uploaded object: the title for resumes, the document id for previews.
func (r RenderRequest) Identifier(mode Mode) string {
	if mode == ModeImage {
		return r.DocumentID
	}
	return r.Title
}

// Validate checks that r carries everything mode needs.
func (r RenderRequest) Validate(mode Mode) error {
	switch mode {
	case ModePDF, ModeImage:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, mode)
	}
	if r.DocumentID == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidRequest)
	}
	if r.OwnerID == "" {
		return fmt.Errorf("%w: owner id is required", ErrInvalidRequest)
	}
	if mode == ModePDF && r.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}
	if len(r.Data) == 0 || !json.Valid(r.Data) {
		return fmt.Errorf("%w: document data must be valid JSON", ErrInvalidRequest)
	}
	if mode == ModePDF && r.PageCount < 1 {
		return fmt.Errorf("%w: document has no pages", ErrInvalidRequest)
	}
	return nil
}

type resumeMetadata struct {
	Metadata struct {
		Layout []json.RawMessage `json:"layout"`
		CSS    struct {
			Visible bool   `json:"visible"`
			Value   string `json:"value"`
		} `json:"css"`
	} `json:"metadata"`
}

// ParseResume builds a RenderRequest from a resume document. The page count is
// the number of entries in metadata.layout and the custom stylesheet comes from
// metadata.css.
func ParseResume(id, ownerID, title string, data json.RawMessage) (RenderRequest, error) {
	req := RenderRequest{
		DocumentID: id,
		OwnerID:    ownerID,
		Title:      title,
		Data:       data,
	}
	if len(data) == 0 {
		return req, fmt.Errorf("%w: document data is required", ErrInvalidRequest)
	}

	var meta resumeMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return req, fmt.Errorf("%w: cannot read document metadata: %v", ErrInvalidRequest, err)
	}
	req.PageCount = len(meta.Metadata.Layout)
	req.Style = CustomStyle{
		Enabled: meta.Metadata.CSS.Visible,
		CSS:     meta.Metadata.CSS.Value,
	}
	return req, nil
}

// PageFragment is one logical page captured before assembly.
type PageFragment struct {
	Index int
	Data  []byte
}

// RenderedArtifact is the final buffer of a render; URL is set once uploaded.
type RenderedArtifact struct {
	Mode        Mode
	ContentType string
	Data        []byte
	PageCount   int
	URL         string
}
