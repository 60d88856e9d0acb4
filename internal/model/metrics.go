package model

import "sync"

// BrandMetrics tracks per-brand run statistics. Created at discovery time,
// mutated as URLs resolve or fail, finalized at run end for the issue tracker.
// Success and fail counts are updated from concurrent scan workers; use
// AddSuccess and AddFail rather than touching the fields directly.
type BrandMetrics struct {
	mu sync.Mutex

	Brand        string `json:"brand"`
	Domain       string `json:"domain"`
	ParsedURLs   int    `json:"parsed_urls"`
	FilteredURLs int    `json:"filtered_urls"`
	CappedURLs   int    `json:"capped_urls"`
	SuccessCount int    `json:"success_count"`
	FailCount    int    `json:"fail_count"`
}

// AddSuccess increments the scan success count.
func (m *BrandMetrics) AddSuccess() {
	m.mu.Lock()
	m.SuccessCount++
	m.mu.Unlock()
}

// AddFail increments the scan failure count.
func (m *BrandMetrics) AddFail() {
	m.mu.Lock()
	m.FailCount++
	m.mu.Unlock()
}

// Severity ranks an issue ticket. P0 needs attention before the next run.
type Severity string

const (
	SeverityP0 Severity = "P0"
	SeverityP1 Severity = "P1"
	SeverityP2 Severity = "P2"
)

// Stage labels the pipeline stage an issue ticket points at.
type Stage string

const (
	StageDiscovery         Stage = "sitemap_discovery"
	StageScan              Stage = "scan"
	StageExtractionQuality Stage = "extraction_quality"
)

// IssueTicket is an automatically generated shortfall record. Tickets are
// derived deterministically from BrandMetrics against configured expectations
// and persisted as immutable timestamped snapshots, never edited by hand.
type IssueTicket struct {
	Severity Severity `json:"severity"`
	Brand    string   `json:"brand"`
	Stage    Stage    `json:"stage"`
	Problem  string   `json:"problem"`
	Action   string   `json:"action"`
}
