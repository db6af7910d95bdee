package ui

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// CallSummary is what the host prints after leaving.
type CallSummary struct {
	SessionID        string
	Duration         time.Duration
	PeakParticipants int
	Messages         int
	ScreenShared     bool
	EndReason        string
}

// CallSummaryView renders the summary with go-pretty.
func CallSummaryView(s CallSummary) string {
	t := table.NewWriter()
	t.SetTitle("Call Summary")
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}

	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Session", s.SessionID},
		{"Duration", formatDuration(s.Duration)},
		{"Peak participants", s.PeakParticipants},
		{"Chat messages", s.Messages},
		{"Screen shared", yesNo(s.ScreenShared)},
		{"Ended", s.EndReason},
	})
	return t.Render()
}

func RenderCallSummary(s CallSummary) {
	fmt.Println(CallSummaryView(s))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Second:
		return "<1s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
