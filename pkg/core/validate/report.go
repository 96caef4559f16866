package validate

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
)

// Report is the consolidated validation result for one pipeline run.
type Report struct {
	ID          uuid.UUID
	RunID       uuid.UUID
	GeneratedAt time.Time
	Results     []CheckResult
	Score       float64
	Passed      bool
}

// NewReport scores a result set and stamps it with ids.
func NewReport(runID uuid.UUID, results []CheckResult) *Report {
	score := Score(results)
	return &Report{
		ID:          uuid.New(),
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Results:     results,
		Score:       score,
		Passed:      Passed(score),
	}
}

// Markdown renders the report. Failures come first, grouped by severity.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Validation Report\n\n")
	fmt.Fprintf(&b, "- Report: `%s`\n", r.ID)
	fmt.Fprintf(&b, "- Run: `%s`\n", r.RunID)
	fmt.Fprintf(&b, "- Generated: %s\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Score: **%.3f** (threshold %.2f)\n", r.Score, passThreshold)
	if r.Passed {
		fmt.Fprintf(&b, "- Result: **PASSED**\n\n")
	} else {
		fmt.Fprintf(&b, "- Result: **FAILED**\n\n")
	}

	failures := filterResults(r.Results, false)
	if len(failures) > 0 {
		fmt.Fprintf(&b, "## Failures (%d)\n\n", len(failures))
		fmt.Fprintf(&b, "| Check | Severity | Detail |\n|---|---|---|\n")
		for _, res := range failures {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", res.Name, res.Severity, res.Message)
		}
		b.WriteString("\n")
	}

	passes := filterResults(r.Results, true)
	fmt.Fprintf(&b, "## Passed checks (%d)\n\n", len(passes))
	for _, res := range passes {
		fmt.Fprintf(&b, "- %s (%s)\n", res.Name, res.Severity)
	}
	return b.String()
}

// Write persists the markdown report plus an HTML rendering next to it.
// Returns the markdown path.
func (r *Report) Write(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}
	base := fmt.Sprintf("validation_%s", r.GeneratedAt.Format("20060102_150405"))
	mdPath := filepath.Join(dir, base+".md")
	md := r.Markdown()
	if err := os.WriteFile(mdPath, []byte(md), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	var html bytes.Buffer
	if err := goldmark.Convert([]byte(md), &html); err != nil {
		return "", fmt.Errorf("failed to render report html: %w", err)
	}
	htmlPath := filepath.Join(dir, base+".html")
	if err := os.WriteFile(htmlPath, html.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report html: %w", err)
	}
	return mdPath, nil
}

func filterResults(results []CheckResult, passed bool) []CheckResult {
	var out []CheckResult
	for _, r := range results {
		if r.Passed == passed {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		wi, wj := severityWeight(out[i].Severity), severityWeight(out[j].Severity)
		if wi != wj {
			return wi > wj
		}
		return out[i].Name < out[j].Name
	})
	return out
}
