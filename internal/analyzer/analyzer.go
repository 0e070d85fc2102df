// Package analyzer computes advisory quality reports for directory listings.
// Reports are deterministic for a given candidate and snapshot, and analysis
// never fails: any internal error degrades to an empty report.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mcpdir/mcpdir/internal/models"
)

// Score deductions. The baseline is 1.0 and each gap subtracts a fixed
// amount; the result is clamped to [0, 1].
const (
	deductShortDescription = 0.15
	deductLongDescription  = 0.15
	deductLinks            = 0.10
	deductVersion          = 0.10
	deductLicense          = 0.10
	deductMaintainer       = 0.05
	deductTags             = 0.05
)

// minShortDescription is the length below which a short description is
// considered too thin to score full marks.
const minShortDescription = 40

// knownLicenses are the license identifiers the intake form offers.
var knownLicenses = map[string]bool{
	"MIT":          true,
	"Apache-2.0":   true,
	"GPL-3.0":      true,
	"BSD-3-Clause": true,
	"BSD-2-Clause": true,
	"Commercial":   true,
	"Freemium":     true,
	"Proprietary":  true,
}

// Suggester produces extra improvement suggestions for a candidate. The
// LLM-backed generator implements this; failures are advisory and dropped.
type Suggester interface {
	Suggest(ctx context.Context, candidate *models.Listing) ([]string, error)
}

// Analyzer scores candidates and finds similar listings in a snapshot.
type Analyzer struct {
	suggester Suggester
	logger    *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithSuggester merges suggestions from an external generator into reports.
func WithSuggester(s Suggester) Option {
	return func(a *Analyzer) { a.suggester = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

func New(opts ...Option) *Analyzer {
	a := &Analyzer{logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze produces a report for candidate against a snapshot of existing
// listings. A cancelled context or internal panic yields an empty report
// with an unset score; the caller never sees an error.
func (a *Analyzer) Analyze(ctx context.Context, candidate *models.Listing, snapshot []*models.Listing) (report *models.AnalysisReport) {
	report = &models.AnalysisReport{}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("analysis failed, returning empty report", "panic", fmt.Sprint(r))
			report = &models.AnalysisReport{}
		}
	}()

	if candidate == nil || ctx.Err() != nil {
		return report
	}

	score := a.score(candidate, report)
	report.QualityScore = &score
	report.Suggestions = append(report.Suggestions, suggestions(candidate)...)
	report.Similar = SimilarTo(candidate, snapshot)

	if a.suggester != nil && ctx.Err() == nil {
		extra, err := a.suggester.Suggest(ctx, candidate)
		if err != nil {
			a.logger.Warn("suggestion generator failed", "error", err)
		} else {
			report.Suggestions = append(report.Suggestions, extra...)
		}
	}

	if ctx.Err() != nil {
		return &models.AnalysisReport{}
	}
	return report
}

// score walks the deduction table, recording an issue for each gap found.
func (a *Analyzer) score(c *models.Listing, report *models.AnalysisReport) float64 {
	score := 1.0

	if len(strings.TrimSpace(c.ShortDescription)) < minShortDescription {
		score -= deductShortDescription
		report.Issues = append(report.Issues, "Short description is too brief to convey what this does")
	}
	if strings.TrimSpace(c.LongDescription) == "" {
		score -= deductLongDescription
		report.Issues = append(report.Issues, "Missing detailed description")
	}
	if len(c.Links) == 0 {
		score -= deductLinks
		report.Issues = append(report.Issues, "No website, repository, or documentation links provided")
	}
	if strings.TrimSpace(c.Version) == "" {
		score -= deductVersion
		report.Issues = append(report.Issues, "No version specified")
	}
	if !knownLicenses[strings.TrimSpace(c.License)] {
		score -= deductLicense
		report.Issues = append(report.Issues, "License is ambiguous or unrecognized")
	}
	if strings.TrimSpace(c.Maintainer) == "" {
		score -= deductMaintainer
	}
	if len(c.Tags) == 0 {
		score -= deductTags
		report.Issues = append(report.Issues, "No tags provided, which hurts discoverability")
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// suggestions returns improvement hints tailored to the candidate's category.
func suggestions(c *models.Listing) []string {
	var out []string

	if n := len(strings.TrimSpace(c.ShortDescription)); n > 0 && n < minShortDescription {
		out = append(out, "Expand the short description to better explain what this does")
	}

	switch c.Category {
	case models.CategoryServer:
		if strings.TrimSpace(c.Requirements) == "" {
			out = append(out, "Add system requirements so users know what they need to run this server")
		}
		if strings.TrimSpace(c.LongDescription) == "" {
			out = append(out, "Include deployment instructions in the detailed description")
		}
	case models.CategoryApplication:
		out = append(out, "Consider adding screenshots and compatibility notes to the detailed description")
	case models.CategoryTool:
		if strings.TrimSpace(c.LongDescription) == "" {
			out = append(out, "Include installation instructions in the detailed description")
		}
	}

	if _, ok := c.Links[models.LinkDocumentation]; !ok {
		out = append(out, "Link to documentation to help users get started")
	}
	return out
}
