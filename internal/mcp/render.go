package mcp

import (
	"fmt"
	"strings"

	"github.com/timeforged/timeforged-mcp/internal/format"
)

func renderStatus(s statusResponse) string {
	return strings.Join([]string{
		"Status: " + s.Status,
		"Version: " + s.Version,
		fmt.Sprintf("Users: %d", s.UserCount),
		fmt.Sprintf("Events: %d", s.EventCount),
	}, "\n")
}

func renderToday(s summaryResponse) string {
	lines := []string{"Today: " + format.Duration(int64(s.TotalSeconds))}
	lines = appendShares(lines, "Projects:", s.Projects)
	lines = appendShares(lines, "Languages:", s.Languages)
	return strings.Join(lines, "\n")
}

func renderReport(s summaryResponse) string {
	lines := []string{
		"Total: " + format.Duration(int64(s.TotalSeconds)),
		fmt.Sprintf("Period: %s → %s", s.From, s.To),
	}
	lines = appendShares(lines, "Projects:", s.Projects)
	lines = appendShares(lines, "Languages:", s.Languages)
	if len(s.Days) > 0 {
		lines = append(lines, "", "Daily:")
		for _, d := range s.Days {
			lines = append(lines, fmt.Sprintf("  %s: %s", d.Date, format.Duration(int64(d.TotalSeconds))))
		}
	}
	return strings.Join(lines, "\n")
}

// appendShares adds a blank line, header and one row per entry, in the
// order the daemon returned them. Nothing is added for an empty list.
func appendShares(lines []string, header string, entries []share) []string {
	if len(entries) == 0 {
		return lines
	}
	lines = append(lines, "", header)
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("  %s: %s (%s)",
			e.Name, format.Duration(int64(e.TotalSeconds)), format.Percent(e.Percent)))
	}
	return lines
}

func renderSessions(sessions []session) string {
	if len(sessions) == 0 {
		return "No sessions found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sessions (%d):", len(sessions))
	for i, s := range sessions {
		project := ""
		if s.Project != nil && *s.Project != "" {
			project = fmt.Sprintf(" [%s]", *s.Project)
		}
		fmt.Fprintf(&b, "\n%d. %s → %s (%s, %d events)%s",
			i+1, s.Start, s.End, format.Duration(int64(s.DurationSeconds)), s.EventCount, project)
	}
	return b.String()
}

func renderEventAck(a eventAck) string {
	return fmt.Sprintf("Event sent: id=%d, entity=%s, type=%s", a.ID, a.Entity, a.EventType)
}
