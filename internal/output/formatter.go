package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/jenian/envpilot/internal/matcher"
	"github.com/jenian/envpilot/internal/scanner"
)

var (
	// Color support detection
	colorEnabled = initColorSupport()
)

// initColorSupport initializes color support for the terminal
func initColorSupport() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	// On Windows, enable ANSI escape sequences (handled in formatter_windows.go)
	return enableANSI()
}

// Formatter renders command results as styled tables or JSON
type Formatter struct {
	out      io.Writer
	json     bool
	renderer *lipgloss.Renderer

	header  lipgloss.Style
	cell    lipgloss.Style
	dim     lipgloss.Style
	good    lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	heading lipgloss.Style
}

// New creates a formatter writing to out. Colors are used only when out is
// the process's terminal.
func New(out io.Writer, jsonOutput bool) *Formatter {
	r := lipgloss.NewRenderer(out)
	if !(colorEnabled && out == os.Stdout) {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Formatter{
		out:      out,
		json:     jsonOutput,
		renderer: r,
		header:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1),
		cell:     r.NewStyle().Padding(0, 1),
		dim:      r.NewStyle().Foreground(lipgloss.Color("8")),
		good:     r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		warn:     r.NewStyle().Foreground(lipgloss.Color("3")),
		bad:      r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		heading:  r.NewStyle().Bold(true),
	}
}

// JSON reports whether the formatter emits JSON
func (f *Formatter) JSON() bool {
	return f.json
}

func (f *Formatter) encode(v any) error {
	encoder := json.NewEncoder(f.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (f *Formatter) table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.dim).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return f.header
			}
			return f.cell
		})
	return t.String()
}

// List prints discovered environments
func (f *Formatter) List(envs []scanner.Environment) error {
	if f.json {
		if envs == nil {
			envs = []scanner.Environment{}
		}
		return f.encode(envs)
	}
	if len(envs) == 0 {
		fmt.Fprintln(f.out, f.warn.Render("No environments found."))
		return nil
	}

	rows := make([][]string, 0, len(envs))
	for _, env := range envs {
		rows = append(rows, []string{
			env.Name,
			env.PythonVersion,
			strconv.Itoa(env.PackageCount),
			humanize.Bytes(uint64(env.SizeBytes)),
			env.Path,
		})
	}
	fmt.Fprintln(f.out, f.heading.Render(fmt.Sprintf("Found %d environment(s)", len(envs))))
	fmt.Fprintln(f.out, f.table([]string{"Name", "Python", "Packages", "Size", "Path"}, rows))
	return nil
}

// Match prints ranked match results
func (f *Formatter) Match(manifestPath string, results []matcher.Result) error {
	if f.json {
		if results == nil {
			results = []matcher.Result{}
		}
		return f.encode(results)
	}
	if len(results) == 0 {
		fmt.Fprintln(f.out, f.warn.Render("No environments found to match against."))
		return nil
	}

	rows := make([][]string, 0, len(results))
	for i, r := range results {
		missing := "None"
		if len(r.Missing) > 0 {
			missing = strings.Join(r.Missing, "\n")
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			r.Environment.Name,
			fmt.Sprintf("%.1f%%", r.MatchPercentage),
			strconv.Itoa(r.ExtraCount),
			missing,
			r.Environment.Path,
		})
	}
	fmt.Fprintln(f.out, f.heading.Render("Best matches for "+manifestPath))
	fmt.Fprintln(f.out, f.table([]string{"Rank", "Name", "Match %", "Extra", "Missing", "Path"}, rows))

	best := results[0]
	if best.MatchPercentage == 100 {
		fmt.Fprintln(f.out, f.good.Render(fmt.Sprintf("✓ %s satisfies every requirement", best.Environment.Name)))
	}
	return nil
}

// CleanReport is the JSON shape of `envpilot clean`
type CleanReport struct {
	Orphaned []scanner.Environment `json:"orphaned"`
	Removed  []string              `json:"removed"`
	Errors   []string              `json:"errors"`
	DryRun   bool                  `json:"dry_run"`
}

// Orphans prints the environments that clean would remove
func (f *Formatter) Orphans(envs []scanner.Environment, totalSize int64) error {
	if f.json {
		return nil
	}
	if len(envs) == 0 {
		fmt.Fprintln(f.out, f.good.Render("✓ No orphaned environments found."))
		return nil
	}
	rows := make([][]string, 0, len(envs))
	for _, env := range envs {
		rows = append(rows, []string{env.Name, humanize.Bytes(uint64(env.SizeBytes)), env.Path})
	}
	fmt.Fprintln(f.out, f.heading.Render(fmt.Sprintf("Found %d orphaned environment(s) using %s", len(envs), humanize.Bytes(uint64(totalSize)))))
	fmt.Fprintln(f.out, f.table([]string{"Name", "Size", "Path"}, rows))
	return nil
}

// Clean prints the outcome of a clean run
func (f *Formatter) Clean(report CleanReport) error {
	if f.json {
		if report.Orphaned == nil {
			report.Orphaned = []scanner.Environment{}
		}
		if report.Removed == nil {
			report.Removed = []string{}
		}
		if report.Errors == nil {
			report.Errors = []string{}
		}
		return f.encode(report)
	}
	for _, path := range report.Removed {
		fmt.Fprintf(f.out, "%s %s\n", f.good.Render("removed"), path)
	}
	for _, msg := range report.Errors {
		fmt.Fprintf(f.out, "%s %s\n", f.bad.Render("error"), msg)
	}
	if len(report.Removed) > 0 {
		fmt.Fprintln(f.out, f.good.Render(fmt.Sprintf("✓ Removed %d environment(s).", len(report.Removed))))
	}
	return nil
}

// Success prints a confirmation line
func (f *Formatter) Success(format string, args ...any) {
	fmt.Fprintln(f.out, f.good.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Warn prints a warning line
func (f *Formatter) Warn(format string, args ...any) {
	fmt.Fprintln(f.out, f.warn.Render("! "+fmt.Sprintf(format, args...)))
}

// Info prints a plain line
func (f *Formatter) Info(format string, args ...any) {
	fmt.Fprintln(f.out, fmt.Sprintf(format, args...))
}

// FormatError formats an error message
func FormatError(err error) string {
	return fmt.Sprintf("Error: %s\n", err)
}
