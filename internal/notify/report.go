// Package notify renders review outcomes and delivers them to contributors
// and operators.
package notify

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"seed-ingest/internal/model"
)

// Report is the outcome of checking or submitting one change set.
type Report struct {
	Title       string
	ChangeSetID uuid.UUID
	Source      string
	Accepted    bool
	Queued      bool
	Added       []string
	Modified    []string
	Removed     []string
	DataFiles   int
	Rows        int
	Violations  model.Violations
	// MaxViolations caps the listed violations; zero lists all.
	MaxViolations int
}

// Reporter delivers a rendered report.
type Reporter interface {
	Report(ctx context.Context, r Report) error
}

// Alerter tells operators about ingestion cycle failures.
type Alerter interface {
	CycleFailed(ctx context.Context, cycle model.IngestionCycle) error
}

// NewReport summarises cs and its violations.
func NewReport(title string, cs model.ChangeSet, accepted, queued bool, violations model.Violations) Report {
	r := Report{
		Title:       title,
		ChangeSetID: cs.ID,
		Source:      cs.Source,
		Accepted:    accepted,
		Queued:      queued,
		DataFiles:   len(cs.Data),
		Rows:        cs.RowCount(),
		Violations:  violations,
	}
	for _, sc := range cs.Symbols {
		switch sc.Op {
		case model.OpAdd:
			r.Added = append(r.Added, sc.Record.Name)
		case model.OpModify:
			r.Modified = append(r.Modified, sc.Record.Name)
		case model.OpRemove:
			r.Removed = append(r.Removed, sc.Record.Name)
		}
	}
	return r
}

// Markdown renders the report for a pull-request comment.
func (r Report) Markdown() string {
	var b strings.Builder

	status := "✅ accepted"
	switch {
	case !r.Accepted:
		status = "❌ rejected"
	case r.Queued:
		status = "✅ accepted, queued for the next ingestion cycle"
	}
	title := r.Title
	if title == "" {
		title = "Seed data check"
	}
	fmt.Fprintf(&b, "### %s: %s\n\n", title, status)

	writeNames(&b, "Added symbols", r.Added)
	writeNames(&b, "Modified symbols", r.Modified)
	writeNames(&b, "Removed symbols", r.Removed)
	if r.DataFiles > 0 {
		fmt.Fprintf(&b, "- Data files changed: %d (%d rows upserted)\n", r.DataFiles, r.Rows)
	}
	if len(r.Added)+len(r.Modified)+len(r.Removed)+r.DataFiles == 0 {
		b.WriteString("- No changes detected\n")
	}

	if len(r.Violations) > 0 {
		fmt.Fprintf(&b, "\n#### Violations (%d)\n\n", len(r.Violations))
		b.WriteString("| Kind | Symbol | Location | Message |\n|---|---|---|---|\n")
		shown := r.Violations
		if r.MaxViolations > 0 && len(shown) > r.MaxViolations {
			shown = shown[:r.MaxViolations]
		}
		for _, v := range shown {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", v.Kind, cell(v.Symbol), cell(location(v)), cell(v.Message))
		}
		if hidden := len(r.Violations) - len(shown); hidden > 0 {
			fmt.Fprintf(&b, "\n_%d more violation(s) not shown._\n", hidden)
		}
	}
	return b.String()
}

func writeNames(b *strings.Builder, label string, names []string) {
	if len(names) == 0 {
		return
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(sorted, ", "))
}

func location(v model.Violation) string {
	loc := v.File
	if v.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, v.Line)
	}
	if v.Field != "" {
		if loc != "" {
			loc += " "
		}
		loc += "(" + v.Field + ")"
	}
	return loc
}

func cell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}

// CycleMessage renders a plain-text alert for a failed cycle.
func CycleMessage(cycle model.IngestionCycle) string {
	var b strings.Builder
	b.WriteString("[seed-ingest] ingestion cycle failed\n")
	fmt.Fprintf(&b, "Cycle: %s\n", cycle.ID)
	fmt.Fprintf(&b, "Started: %s UTC\n", cycle.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Change sets: %d collected, %d acked\n", cycle.Collected, cycle.Acked)

	symbols := make([]string, 0, len(cycle.Failed))
	for s := range cycle.Failed {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		fmt.Fprintf(&b, "%s: %v\n", s, cycle.Failed[s])
	}
	return b.String()
}

// StdoutReporter writes markdown reports to a writer.
type StdoutReporter struct {
	W io.Writer
}

// Report prints r.
func (s StdoutReporter) Report(_ context.Context, r Report) error {
	_, err := io.WriteString(s.W, r.Markdown())
	return err
}

// Multi fans a report out to several reporters and joins their errors.
type Multi []Reporter

// Report delivers r to every reporter.
func (m Multi) Report(ctx context.Context, r Report) error {
	var errs []string
	for _, rep := range m {
		if err := rep.Report(ctx, r); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("deliver report: %s", strings.Join(errs, "; "))
	}
	return nil
}

var (
	_ Reporter = StdoutReporter{}
	_ Reporter = Multi(nil)
)
