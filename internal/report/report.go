// Package report renders audit records for the terminal.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/crimson-sun/appendix/internal/model"
)

var (
	positive = lipgloss.Color("#8BC34A")
	negative = lipgloss.Color("#e53935")
	info     = lipgloss.Color("#2196F3")
	other    = lipgloss.Color("#C678DD")
	muted    = lipgloss.Color("#6B7280")
)

// Styles holds the lipgloss styles used by Render.
type Styles struct {
	Title lipgloss.Style
	Key   lipgloss.Style
	Muted lipgloss.Style
	Box   lipgloss.Style
}

// DefaultStyles returns the standard report styles.
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true),
		Key:   lipgloss.NewStyle().Width(12),
		Muted: lipgloss.NewStyle().Foreground(muted),
		Box:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(muted).Padding(0, 1),
	}
}

// ColorFor returns the display color of a stage label.
func ColorFor(label string) lipgloss.Color {
	switch label {
	case "appendicitis":
		return positive
	case "no appendicitis", "complicated", model.ErrorLabel:
		return negative
	case "conservative":
		return info
	default:
		return other
	}
}

// Style returns the bold colored style of a stage label.
func Style(label string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ColorFor(label)).Bold(true)
}

// Percent formats a probability as a percentage with one decimal.
func Percent(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}

// Render formats one audit record as a boxed block.
func Render(rec model.AuditRecord, s Styles) string {
	var sb strings.Builder
	sb.WriteString(s.Title.Render("Patient " + rec.ID))
	sb.WriteString("\n")
	sb.WriteString(s.Muted.Render(rec.RecordedAt.Format("2006-01-02 15:04:05")))
	for _, r := range rec.Outcome.Results() {
		sb.WriteString("\n")
		sb.WriteString(renderStage(r, s))
	}
	return s.Box.Render(sb.String())
}

func renderStage(r model.StageResult, s Styles) string {
	label := r.Label()
	line := s.Key.Render(string(r.Stage)) +
		Style(label).Render(label)
	if r.HasProbability() {
		line += " " + s.Muted.Render("("+Percent(r.Probability)+")")
	}
	if r.Err != nil {
		line += "\n" + s.Key.Render("") + s.Muted.Render(r.Err.Error())
	}
	return line
}

// Summary counts labels per stage across records, in first-seen order.
func Summary(recs []model.AuditRecord, s Styles) string {
	var sb strings.Builder
	sb.WriteString(s.Title.Render(fmt.Sprintf("%d records", len(recs))))
	for _, st := range model.Stages() {
		var order []string
		counts := make(map[string]int)
		for _, rec := range recs {
			label := stageOf(rec.Outcome, st).Label()
			if counts[label] == 0 {
				order = append(order, label)
			}
			counts[label]++
		}
		parts := make([]string, len(order))
		for i, label := range order {
			parts[i] = Style(label).Render(label) +
				fmt.Sprintf(" %d", counts[label])
		}
		sb.WriteString("\n")
		sb.WriteString(s.Key.Render(string(st)) + strings.Join(parts, ", "))
	}
	return sb.String()
}

func stageOf(o model.Outcome, st model.Stage) model.StageResult {
	switch st {
	case model.StageSeverity:
		return o.Severity
	case model.StageManagement:
		return o.Management
	default:
		return o.Diagnosis
	}
}
