package preview

import "context"

// PasswordGate inspects a local source document without modifying it
type PasswordGate interface {
	// IsProtected reports whether the document needs a password to be opened
	IsProtected(path string) bool
	// IsCompatible reports whether the document can be opened with credential
	IsCompatible(path, credential string) bool
}

// Fetcher materialises the source of a request as a local file.
// Fetching a document that is already local is a no-op.
type Fetcher interface {
	Fetch(ctx context.Context, req DocumentRequest) (string, error)
}

// ConvertOptions is the context passed to a DocumentConverter
type ConvertOptions struct {
	Credential string
	Format     string // pdf or html
	Extension  string // declared source type
}

// DocumentConverter converts one office document into dest
type DocumentConverter interface {
	Convert(ctx context.Context, src, dest string, opts ConvertOptions) error
}

// ImageConverter renders a PDF into destDir, returning the page image paths in page order
type ImageConverter interface {
	RenderPages(ctx context.Context, pdfPath, destDir string) ([]string, error)
}

// PostProcessor rewrites a converted html artifact in place
type PostProcessor interface {
	Process(path string) error
}

// ArtifactValidator rejects converted artifacts that cannot be displayed
type ArtifactValidator interface {
	Validate(path string) error
}

// Store persists cache entries. Paths are relative to the artifact root.
type Store interface {
	LookupConverted(ctx context.Context, key string) (string, bool, error)
	SaveConverted(ctx context.Context, key, relPath string) error
	DeleteConverted(ctx context.Context, key string) error
	LookupPages(ctx context.Context, key string) ([]string, bool, error)
	SavePages(ctx context.Context, key string, relPaths []string) error
	DeletePages(ctx context.Context, key string) error
}

// JobTracker records conversion attempts
type JobTracker interface {
	StartConversion(ctx context.Context, cacheKey, source string) (string, error)
	FinishConversion(ctx context.Context, jobID string, succeeded bool, detail string) error
}

// Policy holds the global retention flags, read once per request
type Policy struct {
	CacheEnabled      bool
	DeleteSourceFile  bool
	DirectViewEnabled bool
}
