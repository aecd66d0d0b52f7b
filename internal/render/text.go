package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	nameStyle  = lipgloss.NewStyle().Bold(true)
	badgeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#0d1117")).Background(lipgloss.Color("#8b949e")).Padding(0, 1)
	chipStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#58a6ff"))
	activeChip = chipStyle.Bold(true).Underline(true)
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8b949e"))
)

// Text writes a terminal listing of the view, one image per line.
func Text(w io.Writer, v View) error {
	if _, err := fmt.Fprintln(w, infoStyle.Render(v.Message)); err != nil {
		return err
	}
	for _, c := range v.Cards {
		var line strings.Builder
		line.WriteString(nameStyle.Render(c.Name))
		line.WriteString(" ")
		line.WriteString(badgeStyle.Render(c.Folder))
		for _, t := range c.Tags {
			line.WriteString(" ")
			if t.Active {
				line.WriteString(activeChip.Render("#" + t.Label))
			} else {
				line.WriteString(chipStyle.Render("#" + t.Label))
			}
		}
		meta := []string{c.ID}
		if c.Size != "" {
			meta = append(meta, c.Size)
		}
		meta = append(meta, c.Age)
		line.WriteString(" ")
		line.WriteString(infoStyle.Render("(" + strings.Join(meta, ", ") + ")"))
		if _, err := fmt.Fprintln(w, line.String()); err != nil {
			return err
		}
	}
	return nil
}
