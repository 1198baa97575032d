package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/stellarlinkco/mirumi/internal/task"
	"github.com/stellarlinkco/mirumi/internal/timer"
)

var (
	statusStyleInbox     = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	statusStyleRunning   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	statusStylePaused    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	statusStyleCompleted = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	statusStyleArchived  = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	starStyle            = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	detailStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	headingStyle         = lipgloss.NewStyle().Bold(true).Underline(true)
)

func statusStyle(s task.Status) lipgloss.Style {
	switch s {
	case task.StatusInProgress:
		return statusStyleRunning
	case task.StatusPaused:
		return statusStylePaused
	case task.StatusCompleted:
		return statusStyleCompleted
	case task.StatusArchived:
		return statusStyleArchived
	default:
		return statusStyleInbox
	}
}

func taskLine(t *task.Task) string {
	star := " "
	if t.IsImportant {
		star = starStyle.Render("★")
	}
	status := statusStyle(t.Status).Width(12).Render(string(t.Status))
	details := []string{string(t.Priority), fmt.Sprintf("%dm", t.ExpectedSeconds()/60)}
	if t.TotalTimeSpent > 0 {
		details = append(details, "spent "+timer.FormatClock(int(t.TotalTimeSpent)))
	}
	if t.TargetDate != nil {
		details = append(details, "due "+*t.TargetDate)
	}
	if len(t.Tags) > 0 {
		details = append(details, "#"+strings.Join(t.Tags, " #"))
	}
	return fmt.Sprintf("%s %s %s  %s  %s", star, status, t.Title,
		detailStyle.Render("("+strings.Join(details, ", ")+")"), detailStyle.Render(t.ID))
}

func renderTaskList(tasks []*task.Task) func(io.Writer) error {
	return func(w io.Writer) error {
		if len(tasks) == 0 {
			_, err := fmt.Fprintln(w, detailStyle.Render("No tasks."))
			return err
		}
		for _, t := range tasks {
			if _, err := fmt.Fprintln(w, taskLine(t)); err != nil {
				return err
			}
		}
		return nil
	}
}

func renderTask(t *task.Task) func(io.Writer) error {
	return func(w io.Writer) error {
		fmt.Fprintln(w, taskLine(t))
		if t.Description != nil && *t.Description != "" {
			fmt.Fprintf(w, "\n%s\n", *t.Description)
		}
		if t.URL != nil {
			fmt.Fprintf(w, "%s %s\n", detailStyle.Render("url:"), *t.URL)
		}
		if len(t.Memos) > 0 {
			fmt.Fprintf(w, "\n%s\n", headingStyle.Render("Memos"))
			for _, m := range t.Memos {
				fmt.Fprintf(w, "- %s %s\n", m.Content, detailStyle.Render(m.CreatedAt))
			}
		}
		if len(t.Notes) > 0 {
			fmt.Fprintf(w, "\n%s\n", headingStyle.Render("Notes"))
			for _, n := range t.Notes {
				fmt.Fprintf(w, "- %s: %s %s\n", n.Title, n.Content, detailStyle.Render(n.ID))
			}
		}
		if len(t.RunHistory) > 0 {
			fmt.Fprintf(w, "\n%s\n", headingStyle.Render("Sessions"))
			for _, r := range t.RunHistory {
				fmt.Fprintf(w, "- %s %s %s\n", r.StartedAt, r.EndType, timer.FormatClock(int(r.Duration)))
			}
		}
		if len(t.ActionHistory) > 0 {
			fmt.Fprintf(w, "\n%s\n", headingStyle.Render("History"))
			for _, a := range t.ActionHistory {
				fmt.Fprintf(w, "- %s %s\n", a.CreatedAt, a.ActionType)
			}
		}
		return nil
	}
}

func renderCounts(c task.Counts) func(io.Writer) error {
	return func(w io.Writer) error {
		rows := []struct {
			name string
			n    int
		}{
			{"Inbox", c.Inbox}, {"Today", c.Today}, {"Tomorrow", c.Tomorrow},
			{"Overdue", c.Overdue}, {"Starred", c.Starred},
			{"Completed", c.Completed}, {"Archive", c.Archive},
		}
		label := lipgloss.NewStyle().Width(10)
		for _, r := range rows {
			if _, err := fmt.Fprintf(w, "%s %d\n", label.Render(r.name), r.n); err != nil {
				return err
			}
		}
		return nil
	}
}
