// Package intake validates and normalizes listing submissions. The form is
// staged: basic information, detailed description, links and tags, then
// review. Each stage can be validated on its own so a client can gate
// navigation, and Submit re-validates everything before handing the
// candidate to the moderation workflow.
package intake

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mcpdir/mcpdir/internal/analyzer"
	"github.com/mcpdir/mcpdir/internal/models"
	"github.com/mcpdir/mcpdir/internal/moderation"
)

// Stage identifies one step of the submission form.
type Stage int

const (
	StageBasicInfo Stage = iota + 1
	StageDetails
	StageLinksAndTags
	StageReview
)

func (s Stage) String() string {
	switch s {
	case StageBasicInfo:
		return "Basic Information"
	case StageDetails:
		return "Detailed Description"
	case StageLinksAndTags:
		return "Links & Tags"
	case StageReview:
		return "Review & Submit"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Stages returns the form steps in order.
func Stages() []Stage {
	return []Stage{StageBasicInfo, StageDetails, StageLinksAndTags, StageReview}
}

// LicenseOptions are the license identifiers the form offers.
var LicenseOptions = []string{
	"MIT", "Apache-2.0", "GPL-3.0", "BSD-3-Clause", "BSD-2-Clause",
	"Commercial", "Freemium", "Proprietary", "Other",
}

// TagSuggestions is the vocabulary offered for tag completion. Free-form
// tags are still accepted.
var TagSuggestions = []string{
	"open-source", "enterprise", "productivity", "data", "ai", "automation",
	"security", "monitoring", "database", "api", "cloud", "devtools",
}

// Link is one outbound link on a submission. Kinds must be unique.
type Link struct {
	Kind string `json:"kind" yaml:"kind" validate:"required,oneof=website github documentation"`
	URL  string `json:"url" yaml:"url" validate:"required,url"`
}

// Candidate is a submission in progress. Field tags drive stage validation;
// see stageFields for which fields belong to which stage. YAML tags support
// file-based submission from the CLI.
//
// Only identity fields are mandatory. Thin descriptions, missing links, and
// an absent or ambiguous license are quality gaps the analyzer reports as
// deductions; they never block submission.
type Candidate struct {
	Name             string `json:"name" yaml:"name" validate:"required,min=3,max=100"`
	Category         string `json:"category" yaml:"category" validate:"required,oneof=server application tool"`
	ShortDescription string `json:"shortDescription" yaml:"shortDescription" validate:"required,max=200"`

	LongDescription string `json:"longDescription" yaml:"longDescription" validate:"max=5000"`
	Requirements    string `json:"requirements" yaml:"requirements" validate:"max=500"`

	Version    string   `json:"version" yaml:"version" validate:"max=50"`
	Maintainer string   `json:"maintainer" yaml:"maintainer" validate:"max=100"`
	License    string   `json:"license" yaml:"license" validate:"max=100"`
	Tags       []string `json:"tags" yaml:"tags" validate:"max=10,dive,min=2,max=30"`
	Links      []Link   `json:"links" yaml:"links" validate:"max=3,dive"`

	SubmittedBy string `json:"submittedBy" yaml:"submittedBy" validate:"required,min=2,max=100"`
}

// stageFields maps each stage to the json names it owns. Link sub-errors
// count toward the links field.
var stageFields = map[Stage][]string{
	StageBasicInfo:    {"name", "category", "shortDescription"},
	StageDetails:      {"longDescription", "requirements"},
	StageLinksAndTags: {"version", "maintainer", "license", "tags", "links"},
	StageReview:       {"submittedBy"},
}

// Intake validates candidates and submits them for moderation.
type Intake struct {
	validate   *validator.Validate
	workflow   *moderation.Workflow
	analyzer   *analyzer.Analyzer
	snapshot   analyzer.SnapshotFunc
	reportWait time.Duration
}

// Option configures an Intake.
type Option func(*Intake)

// WithAnalyzer enables opportunistic analysis on Submit. The snapshot
// source supplies the approved listings to compare against.
func WithAnalyzer(a *analyzer.Analyzer, snapshot analyzer.SnapshotFunc) Option {
	return func(in *Intake) {
		in.analyzer = a
		in.snapshot = snapshot
	}
}

// WithReportWait bounds how long Submit waits for analysis before giving up
// and submitting without a report.
func WithReportWait(d time.Duration) Option {
	return func(in *Intake) { in.reportWait = d }
}

func New(w *moderation.Workflow, opts ...Option) *Intake {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report errors under json field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		tag := fld.Tag.Get("json")
		if tag == "-" || tag == "" {
			return fld.Name
		}
		if idx := strings.Index(tag, ","); idx >= 0 {
			tag = tag[:idx]
		}
		return tag
	})

	in := &Intake{
		validate:   v,
		workflow:   w,
		reportWait: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// ValidateStage checks only the fields a single form step owns. The
// candidate is normalized first, so "Server" passes the category check and
// padded fields are measured after trimming.
func (in *Intake) ValidateStage(stage Stage, c *Candidate) error {
	fields := in.fieldErrors(Normalize(c))
	scoped := map[string]string{}
	for _, name := range stageFields[stage] {
		for field, msg := range fields {
			if field == name || strings.HasPrefix(field, name+"[") {
				scoped[field] = msg
			}
		}
	}
	if stage == StageReview {
		// The review step re-checks everything
		scoped = fields
	}
	if len(scoped) > 0 {
		return &models.ValidationError{Fields: scoped}
	}
	return nil
}

// Validate checks the whole candidate across all stages.
func (in *Intake) Validate(c *Candidate) error {
	if fields := in.fieldErrors(Normalize(c)); len(fields) > 0 {
		return &models.ValidationError{Fields: fields}
	}
	return nil
}

// Submit validates all stages, runs an opportunistic analysis, and hands the
// listing to the moderation workflow. Analysis never blocks submission for
// longer than the configured wait; on timeout the listing goes in without a
// report.
func (in *Intake) Submit(ctx context.Context, c *Candidate) (*models.Listing, error) {
	normalized := Normalize(c)
	if fields := in.fieldErrors(normalized); len(fields) > 0 {
		return nil, &models.ValidationError{Fields: fields}
	}

	listing := normalized.Listing()

	var report *models.AnalysisReport
	if in.analyzer != nil {
		actx, cancel := context.WithTimeout(ctx, in.reportWait)
		var snapshot []*models.Listing
		if in.snapshot != nil {
			snapshot = in.snapshot(actx)
		}
		report = in.analyzer.Analyze(actx, listing, snapshot)
		cancel()
		if report.QualityScore == nil && len(report.Issues) == 0 && len(report.Similar) == 0 {
			report = nil // analysis degraded, submit without a snapshot
		}
	}

	if err := in.workflow.Submit(ctx, listing, report); err != nil {
		return nil, err
	}
	return listing, nil
}

// fieldErrors runs struct validation plus the checks tags cannot express,
// keyed by json field name.
func (in *Intake) fieldErrors(c *Candidate) map[string]string {
	fields := map[string]string{}

	if err := in.validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			fields["candidate"] = err.Error()
			return fields
		}
		for _, fe := range verrs {
			fields[fieldPath(fe)] = fieldMessage(fe)
		}
	}

	seen := map[string]bool{}
	for i, link := range c.Links {
		if seen[link.Kind] {
			fields[fmt.Sprintf("links[%d].kind", i)] = fmt.Sprintf("duplicate %s link", link.Kind)
		}
		seen[link.Kind] = true
	}

	return fields
}

// fieldPath flattens a validator namespace like "Candidate.links[0].url"
// into "links[0].url".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

// fieldMessage renders a short human message for a failed validation tag.
func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must have at least %s items", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must have at most %s items", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// Normalize returns a cleaned copy: trimmed strings, lowercase category,
// deduplicated lowercase tags, and empty links dropped. The input is not
// modified.
func Normalize(c *Candidate) *Candidate {
	out := *c

	out.Name = strings.TrimSpace(c.Name)
	out.Category = strings.ToLower(strings.TrimSpace(c.Category))
	out.ShortDescription = strings.TrimSpace(c.ShortDescription)
	out.LongDescription = strings.TrimSpace(c.LongDescription)
	out.Requirements = strings.TrimSpace(c.Requirements)
	out.Version = strings.TrimSpace(c.Version)
	out.Maintainer = strings.TrimSpace(c.Maintainer)
	out.License = strings.TrimSpace(c.License)
	out.SubmittedBy = strings.TrimSpace(c.SubmittedBy)

	out.Tags = nil
	seen := map[string]bool{}
	for _, tag := range c.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out.Tags = append(out.Tags, tag)
	}

	out.Links = nil
	for _, link := range c.Links {
		kind := strings.ToLower(strings.TrimSpace(link.Kind))
		url := strings.TrimSpace(link.URL)
		if kind == "" && url == "" {
			continue
		}
		out.Links = append(out.Links, Link{Kind: kind, URL: url})
	}

	return &out
}

// Listing converts a normalized candidate into the listing the workflow will
// store. Call Normalize first.
func (c *Candidate) Listing() *models.Listing {
	links := make(map[models.LinkKind]string, len(c.Links))
	for _, link := range c.Links {
		links[models.LinkKind(link.Kind)] = link.URL
	}
	if len(links) == 0 {
		links = nil
	}
	return &models.Listing{
		Name:             c.Name,
		Category:         models.Category(c.Category),
		ShortDescription: c.ShortDescription,
		LongDescription:  c.LongDescription,
		Requirements:     c.Requirements,
		Version:          c.Version,
		Maintainer:       c.Maintainer,
		License:          c.License,
		Tags:             c.Tags,
		Links:            links,
		SubmittedBy:      c.SubmittedBy,
	}
}
