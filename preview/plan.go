package preview

import "encoding/json"

// PlanKind names a PresentationPlan variant
type PlanKind string

const (
	KindShowPdf             PlanKind = "show-pdf"
	KindShowImages          PlanKind = "show-images"
	KindShowSpreadsheetHTML PlanKind = "show-spreadsheet-html"
	KindShowCsv             PlanKind = "show-csv"
	KindRequestPassword     PlanKind = "request-password"
	KindUnsupported         PlanKind = "unsupported"
)

// ImageLayout selects how a page image sequence is displayed
type ImageLayout string

const (
	LayoutSlides         ImageLayout = "slides"
	LayoutOfficePictures ImageLayout = "office-pictures"
	LayoutPictures       ImageLayout = "pictures"
)

// PresentationPlan is the only result handed to the presentation layer.
// The set of variants is closed; switch on the concrete type.
type PresentationPlan interface {
	Kind() PlanKind
	plan()
}

type ShowPdf struct {
	URL string `json:"url"`
}

type ShowImages struct {
	URLs   []string    `json:"urls"`
	Layout ImageLayout `json:"layout"`
}

type ShowSpreadsheetHTML struct {
	URL string `json:"url"`
}

type ShowCsv struct {
	URL string `json:"url"`
}

// RequestPassword asks the user for a credential. Retry is set when the
// previously supplied credential did not unlock the document.
type RequestPassword struct {
	Retry bool `json:"retry"`
}

type Unsupported struct {
	Reason string `json:"reason"`
}

func (ShowPdf) Kind() PlanKind             { return KindShowPdf }
func (ShowImages) Kind() PlanKind          { return KindShowImages }
func (ShowSpreadsheetHTML) Kind() PlanKind { return KindShowSpreadsheetHTML }
func (ShowCsv) Kind() PlanKind             { return KindShowCsv }
func (RequestPassword) Kind() PlanKind     { return KindRequestPassword }
func (Unsupported) Kind() PlanKind         { return KindUnsupported }

func (ShowPdf) plan()             {}
func (ShowImages) plan()          {}
func (ShowSpreadsheetHTML) plan() {}
func (ShowCsv) plan()             {}
func (RequestPassword) plan()     {}
func (Unsupported) plan()         {}

// MarshalPlan encodes a plan together with its kind
func MarshalPlan(p PresentationPlan) ([]byte, error) {
	return json.MarshalIndent(struct {
		Kind PlanKind         `json:"kind"`
		Plan PresentationPlan `json:"plan"`
	}{Kind: p.Kind(), Plan: p}, "", "  ")
}
