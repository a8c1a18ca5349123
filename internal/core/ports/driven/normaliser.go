package driven

import "context"

// Upload is the raw body of an uploaded material.
type Upload struct {
	// Filename is the original file name, used for title fallback.
	Filename string

	// MIMEType is the declared content type. Parameters are ignored.
	MIMEType string

	// Content is the uploaded bytes.
	Content []byte
}

// Normaliser turns an upload of a given format into plain text.
// Headings are emitted as "# " lines and pages are separated by form
// feeds so the chunk pipeline can recover structure.
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Generic MIME normalisers should return 50-89.
	// Fallback normalisers should return 1-9.
	Priority() int

	// Normalise extracts the text of an upload.
	Normalise(ctx context.Context, upload *Upload) (*NormaliseResult, error)
}

// NormaliseResult contains the output of normalisation.
// Chunking is handled by the ChunkPipeline.
type NormaliseResult struct {
	// Title is the title found in the upload, if any.
	Title string

	// Text is the extracted UTF-8 text.
	Text string

	// Format names the normaliser that produced the text.
	Format string
}

// NormaliserRegistry selects the appropriate normaliser for an upload.
type NormaliserRegistry interface {
	// Normalise transforms an upload using the highest priority
	// normaliser for its MIME type.
	Normalise(ctx context.Context, upload *Upload) (*NormaliseResult, error)

	// Register adds a normaliser to the registry.
	Register(normaliser Normaliser)

	// SupportedMIMETypes returns all MIME types that can be normalised.
	SupportedMIMETypes() []string
}
