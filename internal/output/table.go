package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/kosty-cloud/kosty/internal/models"
)

// ANSI color codes for severity output (used when Colored=true).
const (
	ansiReset   = "\033[0m"
	ansiBoldRed = "\033[1;31m"
	ansiRed     = "\033[0;31m"
	ansiYellow  = "\033[0;33m"
	ansiBlue    = "\033[0;34m"
)

// TableOptions controls which columns RenderTable renders and how severity is coloured.
type TableOptions struct {
	// Colored wraps severity labels with ANSI codes. Default false (CI-safe).
	Colored bool

	// IncludeCost adds a COST/MO column when any finding carries a monthly cost.
	IncludeCost bool

	// IncludeAccount adds an ACCOUNT column (useful for organization scans).
	IncludeAccount bool
}

// ColorSeverity wraps a severity string with ANSI codes when colored is true.
// When colored is false the string is returned unchanged (CI-safe default).
func ColorSeverity(sev models.Severity, colored bool) string {
	s := string(sev)
	if !colored {
		return s
	}
	switch sev {
	case models.SeverityCritical:
		return ansiBoldRed + s + ansiReset
	case models.SeverityHigh:
		return ansiRed + s + ansiReset
	case models.SeverityMedium:
		return ansiYellow + s + ansiReset
	case models.SeverityLow:
		return ansiBlue + s + ansiReset
	default:
		return s
	}
}

// ShortenMessage truncates msg to at most max runes, appending "..." when truncated.
// max is treated as at least 4 to guarantee space for the ellipsis.
func ShortenMessage(msg string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(msg)
	if len(runes) <= max {
		return msg
	}
	return string(runes[:max-3]) + "..."
}

// hasCost reports whether any finding carries a monthly cost.
func hasCost(findings []models.Finding) bool {
	for _, f := range findings {
		if f.MonthlyCost > 0 {
			return true
		}
	}
	return false
}

// severityCell returns the severity padded to width characters.
// When colored, ANSI codes wrap only the text; trailing padding spaces are plain
// so subsequent columns stay visually aligned regardless of terminal ANSI support.
func severityCell(sev models.Severity, width int, colored bool) string {
	text := string(sev)
	if !colored {
		return fmt.Sprintf("%-*s", width, text)
	}
	var code string
	switch sev {
	case models.SeverityCritical:
		code = ansiBoldRed
	case models.SeverityHigh:
		code = ansiRed
	case models.SeverityMedium:
		code = ansiYellow
	case models.SeverityLow:
		code = ansiBlue
	default:
		return fmt.Sprintf("%-*s", width, text)
	}
	spaces := width - len(text)
	if spaces < 0 {
		spaces = 0
	}
	return code + text + ansiReset + strings.Repeat(" ", spaces)
}

// truncateField shortens s to at most max bytes for ID/label columns.
// A single-char ellipsis replaces the last byte when truncation occurs.
func truncateField(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

// RenderTable writes a formatted findings table to w.
// Columns are dynamically selected based on opts; the separator line width is
// derived from the header row so all rows align correctly.
//
// Column order:
//
//	RESOURCE ID  [ACCOUNT]  REGION  SEVERITY  SERVICE  CHECK  ISSUE  [COST/MO]
func RenderTable(w io.Writer, findings []models.Finding, opts TableOptions) {
	if len(findings) == 0 {
		fmt.Fprintln(w, "No findings.")
		return
	}

	showCost := opts.IncludeCost && hasCost(findings)

	// Fixed column display widths.
	const (
		wResource = 30
		wAccount  = 14
		wRegion   = 15
		wSeverity = 10
		wService  = 12
		wCheck    = 22
		wIssue    = 55
	)

	// Build the header row.
	var hb strings.Builder
	hb.WriteString(fmt.Sprintf("%-*s", wResource, "RESOURCE ID"))
	if opts.IncludeAccount {
		hb.WriteString(fmt.Sprintf("  %-*s", wAccount, "ACCOUNT"))
	}
	hb.WriteString(fmt.Sprintf("  %-*s", wRegion, "REGION"))
	hb.WriteString(fmt.Sprintf("  %-*s", wSeverity, "SEVERITY"))
	hb.WriteString(fmt.Sprintf("  %-*s", wService, "SERVICE"))
	hb.WriteString(fmt.Sprintf("  %-*s", wCheck, "CHECK"))
	hb.WriteString(fmt.Sprintf("  %-*s", wIssue, "ISSUE"))
	if showCost {
		hb.WriteString("  COST/MO")
	}
	header := hb.String()

	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, f := range findings {
		var rb strings.Builder
		rb.WriteString(fmt.Sprintf("%-*s", wResource, truncateField(f.ResourceID, wResource)))
		if opts.IncludeAccount {
			rb.WriteString(fmt.Sprintf("  %-*s", wAccount, truncateField(f.AccountID, wAccount)))
		}
		rb.WriteString(fmt.Sprintf("  %-*s", wRegion, truncateField(f.Region, wRegion)))
		rb.WriteString("  " + severityCell(f.Severity, wSeverity, opts.Colored))
		rb.WriteString(fmt.Sprintf("  %-*s", wService, truncateField(f.Service, wService)))
		rb.WriteString(fmt.Sprintf("  %-*s", wCheck, truncateField(f.Check, wCheck)))
		rb.WriteString(fmt.Sprintf("  %-*s", wIssue, ShortenMessage(f.Issue, wIssue)))
		if showCost {
			rb.WriteString(fmt.Sprintf("  $%.2f", f.MonthlyCost))
		}
		fmt.Fprintln(w, rb.String())
	}
}

// RenderSummary writes the audit rollup below the findings table.
func RenderSummary(w io.Writer, summary models.AuditSummary, partial bool) {
	fmt.Fprintf(w, "\nTotal issues:           %d\n", summary.TotalIssues)
	fmt.Fprintf(w, "Potential monthly savings: $%.2f\n", summary.TotalMonthlySavings)
	fmt.Fprintf(w, "Potential annual savings:  $%.2f\n", summary.TotalAnnualSavings)
	if partial {
		fmt.Fprintln(w, "Warning: some targets could not be scanned; results are partial.")
	}
}
