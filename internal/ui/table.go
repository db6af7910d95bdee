package ui

import (
	"fmt"

	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// ParticipantTable renders the roster with lipgloss/table.
func ParticipantTable(participants []call.Participant) string {
	if len(participants) == 0 {
		return MutedStyle.Render("Nobody here yet")
	}

	rows := make([][]string, 0, len(participants))
	for _, p := range participants {
		rows = append(rows, []string{participantName(p), micLabel(p), cameraLabel(p), mediaLabel(p)})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Participant", "Mic", "Camera", "Media").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		}).
		Render()
}

func participantName(p call.Participant) string {
	icon := IconPeer
	if p.IsHost {
		icon = IconHost
	}
	name := icon + " " + truncateString(p.Name, 24)
	if p.IsLocal {
		return LocalNameStyle.Render(name + " (you)")
	}
	return name
}

// Remote mute and camera state is not signaled, so only the local row shows it.
func micLabel(p call.Participant) string {
	switch {
	case !p.IsLocal:
		return MutedStyle.Render("-")
	case p.IsMuted:
		return IndicatorOffStyle.Render("muted")
	default:
		return IndicatorOnStyle.Render("on")
	}
}

func cameraLabel(p call.Participant) string {
	switch {
	case !p.IsLocal:
		return MutedStyle.Render("-")
	case p.IsVideoOff:
		return IndicatorOffStyle.Render("off")
	default:
		return IndicatorOnStyle.Render("on")
	}
}

func mediaLabel(p call.Participant) string {
	if p.IsLocal {
		return MutedStyle.Render("local")
	}
	if p.Stream == nil {
		return WarningStyle.Render("connecting")
	}
	packets, bytes := p.Stream.Stats()
	return fmt.Sprintf("%d pkts / %s", packets, formatBytes(int64(bytes)))
}

// SessionInfo is the box printed when a new session is created.
type SessionInfo struct {
	SessionID string
	Link      string
}

func (s SessionInfo) View() string {
	content := fmt.Sprintf("%s Session Created!\n\n%s Session ID:  %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(s.SessionID),
	)
	if s.Link != "" {
		content += fmt.Sprintf("\n%s Join Link:   %s", IconLink, MutedStyle.Render(s.Link))
	}
	return SuccessBoxStyle.Render(content)
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

