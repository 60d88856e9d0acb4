// Package issues turns run metrics into actionable tickets: which brand
// broke, at which pipeline stage, and how urgent the fix is.
package issues

import (
	"fmt"
	"sort"

	"github.com/vitalsight/harvest-cli/internal/config"
	"github.com/vitalsight/harvest-cli/internal/model"
)

// Evaluator derives issue tickets from per-brand run metrics.
type Evaluator struct {
	cfg config.ExpectConfig
}

// NewEvaluator creates an Evaluator with the given expectations.
func NewEvaluator(cfg config.ExpectConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate inspects every brand's metrics and quality counts, returning
// tickets ordered by severity (P0 first).
//
// Discovery: parsed URLs below the expected minimum raises a ticket
// against the sitemap stage; under half the expectation makes it P0.
// Scan: zero successes with work attempted is P0, a low success rate P1.
// Quality: excessive zero-price, missing-image, or missing-highlight
// fractions raise P2 extraction tickets.
func (e *Evaluator) Evaluate(metrics map[string]*model.BrandMetrics, records []model.ProductRecord) []model.IssueTicket {
	byBrand := make(map[string][]model.ProductRecord)
	for _, r := range records {
		byBrand[r.Brand] = append(byBrand[r.Brand], r)
	}

	var tickets []model.IssueTicket
	for _, m := range metrics {
		tickets = append(tickets, e.discoveryTickets(m)...)
		tickets = append(tickets, e.scanTickets(m)...)
		tickets = append(tickets, e.qualityTickets(m.Brand, byBrand[m.Brand])...)
	}

	sortTickets(tickets)
	return tickets
}

func (e *Evaluator) discoveryTickets(m *model.BrandMetrics) []model.IssueTicket {
	expected := e.cfg.MinFor(m.Brand)
	if expected <= 0 || m.ParsedURLs >= expected {
		return nil
	}

	severity := model.SeverityP1
	if m.ParsedURLs*2 < expected {
		severity = model.SeverityP0
	}

	return []model.IssueTicket{{
		Severity: severity,
		Brand:    m.Brand,
		Stage:    model.StageDiscovery,
		Problem: fmt.Sprintf("sitemap yielded %d URLs, expected at least %d",
			m.ParsedURLs, expected),
		Action: "check sitemap paths and robots.txt for " + m.Domain + "; the site may have moved or split its sitemap",
	}}
}

func (e *Evaluator) scanTickets(m *model.BrandMetrics) []model.IssueTicket {
	attempted := m.SuccessCount + m.FailCount
	if attempted == 0 {
		return nil
	}

	if m.SuccessCount == 0 {
		return []model.IssueTicket{{
			Severity: model.SeverityP0,
			Brand:    m.Brand,
			Stage:    model.StageScan,
			Problem:  fmt.Sprintf("all %d scans failed", attempted),
			Action:   "inspect the error log for " + m.Brand + "; likely a block or a site redesign",
		}}
	}

	rate := float64(m.SuccessCount) / float64(attempted)
	if threshold := e.cfg.SuccessRate; threshold > 0 && rate < threshold {
		return []model.IssueTicket{{
			Severity: model.SeverityP1,
			Brand:    m.Brand,
			Stage:    model.StageScan,
			Problem: fmt.Sprintf("scan success rate %.0f%% below %.0f%% threshold (%d/%d)",
				rate*100, threshold*100, m.SuccessCount, attempted),
			Action: "review recent failures for " + m.Brand + " and adjust selectors or retry policy",
		}}
	}
	return nil
}

func (e *Evaluator) qualityTickets(brand string, records []model.ProductRecord) []model.IssueTicket {
	if len(records) == 0 {
		return nil
	}

	var zeroPrice, noImage, noHighlights int
	for _, r := range records {
		if r.Price == 0 {
			zeroPrice++
		}
		if r.ImageURL == "" {
			noImage++
		}
		if r.ProductHighlights == "" {
			noHighlights++
		}
	}

	total := float64(len(records))
	var tickets []model.IssueTicket

	if max := e.cfg.MaxZeroPriceRate; max > 0 && float64(zeroPrice)/total > max {
		tickets = append(tickets, model.IssueTicket{
			Severity: model.SeverityP2,
			Brand:    brand,
			Stage:    model.StageExtractionQuality,
			Problem:  fmt.Sprintf("%d of %d records have no price", zeroPrice, len(records)),
			Action:   "review price selectors and waterfall order for " + brand,
		})
	}
	if max := e.cfg.MaxMissingImage; max > 0 && float64(noImage)/total > max {
		tickets = append(tickets, model.IssueTicket{
			Severity: model.SeverityP2,
			Brand:    brand,
			Stage:    model.StageExtractionQuality,
			Problem:  fmt.Sprintf("%d of %d records have no image", noImage, len(records)),
			Action:   "check og:image and img extraction for " + brand,
		})
	}
	if max := e.cfg.MaxMissingHilights; max > 0 && float64(noHighlights)/total > max {
		tickets = append(tickets, model.IssueTicket{
			Severity: model.SeverityP2,
			Brand:    brand,
			Stage:    model.StageExtractionQuality,
			Problem:  fmt.Sprintf("%d of %d records have no highlights", noHighlights, len(records)),
			Action:   "extend the highlight keyword rules for " + brand + "'s product copy",
		})
	}
	return tickets
}

var severityRank = map[model.Severity]int{
	model.SeverityP0: 0,
	model.SeverityP1: 1,
	model.SeverityP2: 2,
}

func sortTickets(tickets []model.IssueTicket) {
	sort.SliceStable(tickets, func(i, j int) bool {
		a, b := tickets[i], tickets[j]
		if severityRank[a.Severity] != severityRank[b.Severity] {
			return severityRank[a.Severity] < severityRank[b.Severity]
		}
		return a.Brand < b.Brand
	})
}
