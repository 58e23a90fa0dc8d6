package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/kailas-cloud/vecshop/internal/domain/search/match"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	scoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

// resultJSON mirrors the HTTP API product shape.
type resultJSON struct {
	ID                 string  `json:"id"`
	ProductDisplayName string  `json:"productDisplayName"`
	MasterCategory     string  `json:"masterCategory"`
	SubCategory        string  `json:"subCategory"`
	BaseColour         string  `json:"baseColour"`
	Similarity         float64 `json:"similarity"`
}

func printMatches(w io.Writer, matches []match.Match, asJSON bool) error {
	if asJSON {
		items := make([]resultJSON, len(matches))
		for i := range matches {
			m := &matches[i]
			items[i] = resultJSON{
				ID:                 m.ProductID(),
				ProductDisplayName: m.DisplayName(),
				MasterCategory:     m.Category(),
				SubCategory:        m.SubCategory(),
				BaseColour:         m.Colour(),
				Similarity:         m.Similarity(),
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	if len(matches) == 0 {
		_, err := fmt.Fprintln(w, mutedStyle.Render("no matching products"))
		return err
	}
	for i := range matches {
		m := &matches[i]
		_, err := fmt.Fprintf(w, "%s %s %s %s\n",
			scoreStyle.Render(fmt.Sprintf("[%.3f]", m.Similarity())),
			headerStyle.Render(m.DisplayName()),
			mutedStyle.Render("#"+m.ProductID()),
			mutedStyle.Render(fmt.Sprintf("%s / %s / %s", m.Category(), m.SubCategory(), m.Colour())),
		)
		if err != nil {
			return err
		}
	}
	return nil
}
