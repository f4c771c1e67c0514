package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/JaimeStill/emissary/audit"
	"github.com/JaimeStill/emissary/internal/checkpoint"
	"github.com/JaimeStill/emissary/internal/reports"
	"github.com/JaimeStill/emissary/internal/review"
	"github.com/JaimeStill/emissary/internal/workflow"
)

const trailTail = 5

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0")).Width(16)
	passStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	sectionStyle = lipgloss.NewStyle().Bold(true).MarginTop(1)
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5B8DEF")).
			Padding(0, 1)
)

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

// renderSummary formats one audit result for the terminal.
func renderSummary(res *workflow.Result, locations []string) string {
	rec := res.Record
	lines := []string{
		titleStyle.Render("Carbon Disclosure Audit"),
		row("Document", rec.DocumentID),
		row("Thread", res.ThreadID),
		row("Status", statusText(rec.WorkflowStatus)),
	}

	if c := rec.Compliance; c != nil {
		lines = append(lines,
			row("Trust score", scoreText(c.TrustScore)),
			row("BRSR aligned", yesNo(c.BRSRAligned)),
			row("Category", c.Category),
		)
	}

	lines = append(lines, row("Review", reviewText(res)))

	if c := rec.Compliance; c != nil && len(c.Recommendations) > 0 {
		lines = append(lines, sectionStyle.Render("Recommendations"))
		for _, r := range c.Recommendations {
			lines = append(lines, "  • "+r)
		}
	}

	if len(rec.Errors) > 0 {
		lines = append(lines, sectionStyle.Render("Errors"))
		for _, e := range rec.Errors {
			lines = append(lines, "  "+failStyle.Render("✗")+" "+e)
		}
	}

	trail := rec.ReasoningTrail
	if len(trail) > trailTail {
		trail = trail[len(trail)-trailTail:]
	}
	if len(trail) > 0 {
		lines = append(lines, sectionStyle.Render("Reasoning trail"))
		for _, step := range trail {
			lines = append(lines, fmt.Sprintf("  %s %s: %s",
				mutedStyle.Render(step.Timestamp.Format("15:04:05")), step.Agent, step.Action))
		}
	}

	if len(locations) > 0 {
		lines = append(lines, sectionStyle.Render("Reports"))
		for _, l := range locations {
			lines = append(lines, "  "+l)
		}
	}

	return boxStyle.Render(strings.Join(lines, "\n"))
}

// renderBatch formats a batch rollup.
func renderBatch(s reports.Summary, path string) string {
	lines := []string{
		titleStyle.Render("Batch Audit"),
		row("Processed", fmt.Sprintf("%d", len(s.Results))),
		row("Failed", fmt.Sprintf("%d", len(s.Failures))),
		row("Summary", path),
	}

	for _, r := range s.Results {
		score := mutedStyle.Render("n/a")
		if r.Compliance != nil {
			score = scoreText(r.Compliance.TrustScore)
		}
		lines = append(lines, fmt.Sprintf("  %-28s %s  %s", r.DocumentID, score, statusText(r.WorkflowStatus)))
	}
	for _, f := range s.Failures {
		lines = append(lines, fmt.Sprintf("  %s %s: %s", failStyle.Render("✗"), f.Input, f.Error))
	}

	return boxStyle.Render(strings.Join(lines, "\n"))
}

// renderPending lists threads waiting for review.
func renderPending(cps []checkpoint.Checkpoint) string {
	if len(cps) == 0 {
		return mutedStyle.Render("no audits awaiting review")
	}

	lines := []string{titleStyle.Render(fmt.Sprintf("Awaiting review (%d)", len(cps)))}
	for _, cp := range cps {
		reason := ""
		if cp.Record.HumanReviewReason != nil {
			reason = *cp.Record.HumanReviewReason
		}
		lines = append(lines, fmt.Sprintf("  %s  %s  %s",
			cp.ThreadID, cp.Record.DocumentID, warnStyle.Render(reason)))
	}
	return strings.Join(lines, "\n")
}

// renderNotice formats one streamed review notice.
func renderNotice(p review.Pending) string {
	return fmt.Sprintf("%s %s %s %s",
		mutedStyle.Render(p.FlaggedAt.Format("2006-01-02 15:04:05")),
		warnStyle.Render("review"),
		p.ThreadID,
		p.Reason,
	)
}

func statusText(s audit.Status) string {
	switch s {
	case audit.StatusComplianceComplete, audit.ReviewStatus(audit.DecisionApprove):
		return passStyle.Render(string(s))
	case audit.StatusExtractionFailed, audit.StatusComplianceFailed, audit.ReviewStatus(audit.DecisionReject):
		return failStyle.Render(string(s))
	}
	return warnStyle.Render(string(s))
}

func scoreText(score float64) string {
	text := fmt.Sprintf("%.1f/100", score)
	switch {
	case score >= 80:
		return passStyle.Render(text)
	case score >= 60:
		return warnStyle.Render(text)
	}
	return failStyle.Render(text)
}

func reviewText(res *workflow.Result) string {
	rec := res.Record
	switch {
	case res.Suspended:
		reason := "required"
		if rec.HumanReviewReason != nil {
			reason = *rec.HumanReviewReason
		}
		return warnStyle.Render("pending") + " " + reason
	case rec.HumanReviewCompleted && rec.HumanReviewDecision != nil:
		return string(*rec.HumanReviewDecision)
	case rec.RequiresHumanReview:
		return warnStyle.Render("required")
	}
	return mutedStyle.Render("not required")
}

func yesNo(ok bool) string {
	if ok {
		return passStyle.Render("yes")
	}
	return failStyle.Render("no")
}
