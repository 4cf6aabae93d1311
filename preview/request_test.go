package preview

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		req     DocumentRequest
		wantExt string
		wantNm  string
	}{
		{"from path", DocumentRequest{Source: "/data/Q3 Report.XLSX"}, "xlsx", "Q3 Report.XLSX"},
		{"declared with dot", DocumentRequest{Source: "/data/blob", Extension: ".DOCX"}, "docx", "blob"},
		{"from url", DocumentRequest{Source: "https://example.org/files/deck.pptx?version=2"}, "pptx", "deck.pptx"},
		{"from s3", DocumentRequest{Source: "s3://bucket/folder/sheet.ods"}, "ods", "sheet.ods"},
		{"explicit name wins", DocumentRequest{Source: "https://example.org/download?id=7", Name: "minutes.odt"}, "odt", "minutes.odt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.req.Normalize()
			if n.Extension != tt.wantExt {
				t.Errorf("Expected extension %s, got %s", tt.wantExt, n.Extension)
			}
			if n.Name != tt.wantNm {
				t.Errorf("Expected name %s, got %s", tt.wantNm, n.Name)
			}
			if n.Mode != ModeRaw {
				t.Errorf("Expected default mode raw, got %s", n.Mode)
			}
			if n.SourceURL != n.Source {
				t.Errorf("Expected source url to default to source, got %s", n.SourceURL)
			}
			if again := n.Normalize(); again != n {
				t.Errorf("Expected Normalize to be idempotent, got %#v then %#v", n, again)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := (DocumentRequest{Source: "/a.docx"}).Normalize().Validate(); err != nil {
		t.Errorf("Expected valid request, got %v", err)
	}
	if err := (DocumentRequest{Source: "/a.exe"}).Normalize().Validate(); err == nil {
		t.Error("Expected unsupported extension to fail validation")
	}
	if err := (DocumentRequest{Extension: "docx"}).Normalize().Validate(); err == nil {
		t.Error("Expected missing source to fail validation")
	}
	if err := (DocumentRequest{Source: "/a.docx", Mode: "slideshow"}).Normalize().Validate(); err == nil {
		t.Error("Expected unknown mode to fail validation")
	}
}

func TestCacheKey(t *testing.T) {
	base := DocumentRequest{Source: "/data/Quarterly Report.docx"}
	key := base.CacheKey()

	if key != base.CacheKey() {
		t.Error("Expected cache key to be stable")
	}
	if !strings.HasPrefix(key, "Quarterly_Report_") || !strings.HasSuffix(key, ".pdf") {
		t.Errorf("Unexpected cache key %s", key)
	}

	withDefaults := base
	withDefaults.Mode = ModeRaw
	withDefaults.Extension = "DOCX"
	if withDefaults.CacheKey() != key {
		t.Error("Expected normalised fields not to change the key")
	}

	image := base
	image.Mode = ModeGallery
	if image.CacheKey() != key {
		t.Error("Expected image modes to share the converted pdf")
	}

	variants := map[string]DocumentRequest{
		"other source": {Source: "/data/other/Quarterly Report.docx"},
		"html view":    {Source: base.Source, HTMLView: true},
		"credential":   {Source: base.Source, Credential: "secret"},
		"declared ext": {Source: base.Source, Extension: "doc"},
	}
	seen := map[string]string{key: "base"}
	for name, req := range variants {
		k := req.CacheKey()
		if prev, ok := seen[k]; ok {
			t.Errorf("Expected distinct keys, %s and %s both map to %s", name, prev, k)
		}
		seen[k] = name
	}

	html := DocumentRequest{Source: base.Source, HTMLView: true}
	if !strings.HasSuffix(html.CacheKey(), ".html") {
		t.Errorf("Expected html key, got %s", html.CacheKey())
	}
}

func TestFileStem(t *testing.T) {
	tests := map[string]string{
		"report.docx":       "report",
		"../../etc/passwd":  "passwd",
		"年度 报告.xlsx":        "年度_报告",
		"...":               "document",
		strings.Repeat("a", 80) + ".doc": strings.Repeat("a", maxStemLength),
	}
	for in, want := range tests {
		if got := fileStem(in); got != want {
			t.Errorf("fileStem(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestPageDir(t *testing.T) {
	if got := PageDir("deck_0a1b2c.pdf"); got != "deck_0a1b2c" {
		t.Errorf("Expected deck_0a1b2c, got %s", got)
	}
}
