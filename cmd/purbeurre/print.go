package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sakif/pur-beurre/internal/importer"
	"github.com/sakif/pur-beurre/internal/model"
)

// palette is the CLI stylesheet.
type palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	muted lipgloss.Style
}

var styles = palette{
	title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")),
	ok:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575")),
	err:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF0000")),
	warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500")),
	muted: lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#626262")),
}

// gradeColors follow the official Nutri-Score colors.
var gradeColors = map[string]lipgloss.Color{
	"a": "#038141",
	"b": "#85BB2F",
	"c": "#FECB02",
	"d": "#EE8100",
	"e": "#E63E11",
}

func gradeBadge(grade string) string {
	style := lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("#FFFFFF"))
	if c, ok := gradeColors[strings.ToLower(grade)]; ok {
		style = style.Background(c)
	}
	return style.Render(strings.ToUpper(grade))
}

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.output, format, args...)
}

func (r *Runner) printOK(format string, args ...any) {
	r.printf("%s %s\n", styles.ok.Render("✓"), fmt.Sprintf(format, args...))
}

// printSubstitutes prints the initial product then one line per substitute:
// rank, grade, score, name and barcode.
func (r *Runner) printSubstitutes(initial *model.Product, subs []model.Product) {
	r.printf("%s\n", styles.title.Render(initial.Name))
	r.printf("%s\n\n", styles.muted.Render(fmt.Sprintf(
		"code-barres %s · Nutri-Score %s (%d)", initial.Code, strings.ToUpper(initial.NutriscoreGrade), initial.NutriscoreScore)))

	if len(subs) == 0 {
		r.printf("%s\n", styles.warn.Render("Aucun substitut trouvé."))
		return
	}

	rankWidth := len(strconv.Itoa(len(subs)))
	rank := lipgloss.NewStyle().Width(rankWidth + 1).Align(lipgloss.Right)
	score := lipgloss.NewStyle().Width(4).Align(lipgloss.Right)
	for i, p := range subs {
		line := fmt.Sprintf("%s %s %s  %s %s",
			rank.Render(strconv.Itoa(i+1)+"."),
			gradeBadge(p.NutriscoreGrade),
			score.Render(strconv.Itoa(p.NutriscoreScore)),
			p.Name,
			styles.muted.Render("["+p.Code+"]"),
		)
		if p.ID == initial.ID {
			line += " " + styles.muted.Render("(produit recherché)")
		}
		r.printf("%s\n", line)
	}
}

// printSummary reports an import run.
func (r *Runner) printSummary(s *importer.Summary) {
	r.printf("\n%s\n", styles.title.Render("Import terminé"))
	rows := []struct {
		label string
		value int
	}{
		{"catégories", s.Categories},
		{"produits reçus", s.Fetched},
		{"produits retenus", s.Kept},
		{"produits créés", s.Created},
		{"liens magasin", s.StoresLinked},
	}
	label := lipgloss.NewStyle().Width(18)
	for _, row := range rows {
		r.printf("  %s %d\n", label.Render(row.label), row.value)
	}
	r.printf("  %s %s\n", label.Render("durée"), s.Duration.Round(1e6))

	for _, f := range s.Failures {
		r.printf("  %s %s\n", styles.err.Render("✗"), f.Error())
	}
}
