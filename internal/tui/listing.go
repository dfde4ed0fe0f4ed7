package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/wads/tripscribe/internal/deps"
	"github.com/wads/tripscribe/internal/language"
	"github.com/wads/tripscribe/internal/models/whisper"
	"github.com/wads/tripscribe/internal/queue"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorSubtle)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return StyleLabel.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)
}

// RenderModels lists the whisper catalog with the install state in dir.
func RenderModels(dir, current string) string {
	t := newTable("", "MODEL", "SIZE", "LANGUAGES", "STATE")
	for _, m := range whisper.ListModels() {
		marker := ""
		if m.ID == current {
			marker = "*"
		}
		langs := "English"
		if m.Multilingual {
			langs = "multilingual"
		}
		state := "-"
		if whisper.IsInstalled(dir, m.ID) {
			state = "installed"
		}
		t.Row(marker, m.ID, m.Size, langs, state)
	}
	return t.String() + "\n" + StyleMuted.Render("Models directory: "+dir)
}

// RenderLanguages lists the supported recognizer tags.
func RenderLanguages(current string) string {
	current = language.Normalize(current)
	t := newTable("", "TAG", "LANGUAGE", "NATIVE")
	for _, l := range language.List() {
		marker := ""
		if l.Tag == current {
			marker = "*"
		}
		t.Row(marker, l.Tag, l.Name, l.NativeName)
	}
	return t.String()
}

// RenderSnapshot renders queued items, oldest first.
func RenderSnapshot(s queue.Snapshot) string {
	summary := fmt.Sprintf("%d pending, %d processing, %d failed", s.Pending, s.Processing, s.Failed)
	if len(s.Items) == 0 {
		return StyleSuccess.Render("Queue is empty") + "\n"
	}
	t := newTable("ID", "TRIP", "CREATED", "DURATION", "STATUS", "ATTEMPTS", "REASON")
	for _, it := range s.Items {
		t.Row(
			shortID(it.ID),
			shortID(it.SessionID),
			it.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%.1fs", float64(it.DurationMs)/1000),
			statusStyle(it.Status).Render(string(it.Status)),
			strconv.Itoa(it.Attempts),
			it.FailureReason,
		)
	}
	return t.String() + "\n" + StyleMuted.Render(summary)
}

// RenderDeps reports the external programs and whether each one was found.
func RenderDeps(statuses []deps.Status) string {
	t := newTable("PROGRAM", "PURPOSE", "STATE", "VERSION")
	for _, s := range statuses {
		state := StyleSuccess.Render("ok")
		switch {
		case !s.Installed && s.Required:
			state = StyleError.Render("missing")
		case !s.Installed:
			state = StyleWarning.Render("missing (optional)")
		}
		t.Row(s.Name, s.Purpose, state, s.Version)
	}
	return t.String()
}

// RenderQueueReply formats the daemon's "QUEUE key=value ..." reply.
func RenderQueueReply(reply string) string {
	fields := ParseReply(reply)
	var b strings.Builder
	for _, key := range []string{"pending", "processing", "failed", "total"} {
		fmt.Fprintf(&b, "%s %s\n", StyleLabel.Render(fmt.Sprintf("%-11s", key+":")), fields[key])
	}
	return b.String()
}

// ParseReply splits a control reply into its key=value fields.
func ParseReply(reply string) map[string]string {
	fields := map[string]string{}
	for _, part := range strings.Fields(reply) {
		if k, v, ok := strings.Cut(part, "="); ok {
			fields[k] = v
		}
	}
	return fields
}

func statusStyle(s queue.Status) lipgloss.Style {
	switch s {
	case queue.StatusFailed:
		return StyleError
	case queue.StatusProcessing:
		return StyleHighlight
	}
	return lipgloss.NewStyle()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
