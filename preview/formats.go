package preview

import (
	_ "embed"
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed formats.yaml
var formatsFile []byte

// Direct view kinds
const (
	DirectViewSpreadsheet = "spreadsheet"
	DirectViewCSV         = "csv"
)

// FormatRegistry lists the extensions the pipeline accepts and how they are presented
type FormatRegistry struct {
	Documents    []string          `yaml:"documents"`
	Spreadsheets []string          `yaml:"spreadsheets"`
	Slides       []string          `yaml:"slides"`
	DirectView   map[string]string `yaml:"direct_view"`
}

var (
	formatsOnce sync.Once
	formats     *FormatRegistry
)

// Formats returns the embedded format registry
func Formats() *FormatRegistry {
	formatsOnce.Do(func() {
		registry, err := ParseFormats(formatsFile)
		if err != nil {
			panic(err) // embedded file is part of the build
		}
		formats = registry
	})
	return formats
}

// ParseFormats decodes a registry from YAML
func ParseFormats(data []byte) (*FormatRegistry, error) {
	var registry FormatRegistry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal format registry: %w", err)
	}
	if len(registry.Documents)+len(registry.Spreadsheets)+len(registry.Slides) == 0 {
		return nil, fmt.Errorf("format registry lists no extensions")
	}
	return &registry, nil
}

// All returns every accepted extension
func (r *FormatRegistry) All() []string {
	all := make([]string, 0, len(r.Documents)+len(r.Spreadsheets)+len(r.Slides))
	all = append(all, r.Documents...)
	all = append(all, r.Spreadsheets...)
	all = append(all, r.Slides...)
	return all
}

// Supports reports whether ext is accepted
func (r *FormatRegistry) Supports(ext string) bool {
	return slices.Contains(r.Documents, ext) || slices.Contains(r.Spreadsheets, ext) || slices.Contains(r.Slides, ext)
}

// IsSlides reports whether ext is a presentation format
func (r *FormatRegistry) IsSlides(ext string) bool {
	return slices.Contains(r.Slides, ext)
}

// IsSpreadsheet reports whether ext is a spreadsheet format
func (r *FormatRegistry) IsSpreadsheet(ext string) bool {
	return slices.Contains(r.Spreadsheets, ext)
}

// DirectViewKind returns the direct view kind of ext, or "" when it always needs conversion
func (r *FormatRegistry) DirectViewKind(ext string) string {
	return r.DirectView[ext]
}
