package preview

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Mode is the presentation mode hint carried by a request
type Mode string

const (
	ModeRaw             Mode = "raw"
	ModeImage           Mode = "image"
	ModeGallery         Mode = "image-gallery"
	ModeSpreadsheetHTML Mode = "spreadsheet-html"
	ModeCSV             Mode = "csv"
)

// Target formats of the document conversion
const (
	FormatPDF  = "pdf"
	FormatHTML = "html"
)

const maxStemLength = 48

// DocumentRequest describes one preview request. It is treated as an immutable value.
type DocumentRequest struct {
	Source       string // file path, file://, http(s)://, s3:// or gs:// locator
	SourceURL    string // browser addressable url of the source, used by direct view
	Name         string // original file name
	Extension    string // declared type, lowercase without the dot
	Credential   string
	Mode         Mode
	ForceRefresh bool
	HTMLView     bool // convert spreadsheets to html instead of pdf
	FromArchive  bool // source belongs to an archive that is still open
}

// Normalize fills derived fields. It is idempotent.
func (r DocumentRequest) Normalize() DocumentRequest {
	r.Source = strings.TrimSpace(r.Source)
	if r.Name == "" {
		r.Name = sourceBaseName(r.Source)
	}
	ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(r.Extension), "."))
	if ext == "" {
		ext = strings.ToLower(strings.TrimPrefix(filepath.Ext(r.Name), "."))
	}
	r.Extension = ext
	if r.Mode == "" {
		r.Mode = ModeRaw
	}
	r.Mode = Mode(strings.ToLower(string(r.Mode)))
	if r.SourceURL == "" {
		r.SourceURL = r.Source
	}
	return r
}

// Validate checks the request fields
func (r DocumentRequest) Validate() error {
	exts := make([]interface{}, 0)
	for _, ext := range Formats().All() {
		exts = append(exts, ext)
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Source, validation.Required),
		validation.Field(&r.Extension, validation.Required, validation.In(exts...).Error("unsupported file type")),
		validation.Field(&r.Mode, validation.In(ModeRaw, ModeImage, ModeGallery, ModeSpreadsheetHTML, ModeCSV)),
	)
}

// TargetFormat is the format the document converter produces for this request
func (r DocumentRequest) TargetFormat() string {
	if r.HTMLView {
		return FormatHTML
	}
	return FormatPDF
}

// WantsImages reports whether the request asks for page images
func (r DocumentRequest) WantsImages() bool {
	return (r.Mode == ModeImage || r.Mode == ModeGallery) && !r.HTMLView
}

// CacheKey derives the cache key from the source identity and rendering options.
// Requests carrying a credential get a credential fingerprint in the key so a
// protected document is never shared between different passwords.
func (r DocumentRequest) CacheKey() string {
	n := r.Normalize()
	target := n.TargetFormat()
	sum := sha256.Sum256([]byte(n.Source + "\x00" + n.Extension + "\x00" + target))
	key := fmt.Sprintf("%s_%s", fileStem(n.Name), hex.EncodeToString(sum[:6]))
	if n.Credential != "" {
		key += "_" + CredentialFingerprint(n.Source, n.Credential)
	}
	return key + "." + target
}

// CredentialFingerprint is a short, source scoped digest of a credential
func CredentialFingerprint(source, credential string) string {
	sum := sha256.Sum256([]byte("credential\x00" + source + "\x00" + credential))
	return hex.EncodeToString(sum[:4])
}

// PageDir is the artifact directory holding the page images of a cache key
func PageDir(key string) string {
	return strings.TrimSuffix(key, path.Ext(key))
}

func sourceBaseName(source string) string {
	if u, err := url.Parse(source); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		if base := path.Base(u.Path); base != "." && base != "/" {
			return base
		}
		return u.Host
	}
	return filepath.Base(source)
}

// fileStem turns a file name into a safe artifact name prefix
func fileStem(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	var b strings.Builder
	count := 0
	for _, r := range base {
		if count >= maxStemLength {
			break
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
		count++
	}
	stem := strings.Trim(b.String(), "_")
	if stem == "" {
		return "document"
	}
	return stem
}
