package model

import (
	"strings"
	"time"
)

// ProductRecord is the unified output unit of the pipeline. A record is
// identified by its URL: re-scanning the same URL replaces the prior row,
// never duplicates it.
type ProductRecord struct {
	Source            string  `json:"source" csv:"source"`
	Brand             string  `json:"brand" csv:"brand"`
	Title             string  `json:"title" csv:"title"`
	Price             int     `json:"price" csv:"price"`
	UnitPrice         float64 `json:"unit_price" csv:"unit_price"`
	TotalCount        int     `json:"total_count" csv:"total_count"`
	URL               string  `json:"url" csv:"url"`
	ImageURL          string  `json:"image_url" csv:"image_url"`
	ProductHighlights string  `json:"product_highlights" csv:"product_highlights"`
}

// BrandUnknown is the brand placeholder when no whitelist entry matched.
// The orchestrator overrides it with the discovery-time brand label.
const BrandUnknown = "Unknown"

// HasBrand reports whether the record carries a usable brand label.
func (r *ProductRecord) HasBrand() bool {
	return r.Brand != "" && r.Brand != BrandUnknown
}

// Target is one row of the brand→domain input manifest.
type Target struct {
	Brand  string `json:"brand" csv:"brand"`
	Domain string `json:"domain" csv:"domain"`
}

// CandidateURL is a discovery-time {brand, url} pair. Ephemeral: it lives in
// the URL manifest between the discovery and scan phases and is not persisted
// beyond the run.
type CandidateURL struct {
	Brand string `json:"brand" csv:"brand"`
	URL   string `json:"url" csv:"url"`
}

// JoinHighlights renders highlight phrases in the store format
// (semicolon-joined, empty when none resolved).
func JoinHighlights(phrases []string) string {
	out := phrases[:0]
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ";")
}

// RunResult summarizes one orchestrator run.
type RunResult struct {
	RunID      string                   `json:"run_id"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Targets    int                      `json:"targets"`
	PendingURL int                      `json:"pending_urls"`
	Records    int                      `json:"records"`
	Metrics    map[string]*BrandMetrics `json:"metrics"`
	Tickets    []IssueTicket            `json:"tickets"`
}
