// Package report renders extraction results as JSON, YAML or a table.
package report

import (
	"depscan/internal/extract"
	"depscan/internal/models"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

// Format is an output format name.
type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatYAML, FormatTable:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want json, yaml or table)", s)
	}
}

// Failure is a file that produced no records.
type Failure struct {
	Path  string `json:"path" yaml:"path"`
	Error string `json:"error" yaml:"error"`
}

// Summary counts what a run produced.
type Summary struct {
	Files        int `json:"files" yaml:"files"`
	Dependencies int `json:"dependencies" yaml:"dependencies"`
	Warnings     int `json:"warnings" yaml:"warnings"`
	Failures     int `json:"failures" yaml:"failures"`
}

// Report is the rendered form of an extraction run.
type Report struct {
	Files    []*models.FileDependencies `json:"files" yaml:"files"`
	Failures []Failure                  `json:"failures,omitempty" yaml:"failures,omitempty"`
	Summary  Summary                    `json:"summary" yaml:"summary"`
}

// New builds a report from runner results, keeping their order.
func New(results []extract.FileResult) *Report {
	r := &Report{Files: []*models.FileDependencies{}}
	for _, res := range results {
		if res.Err != nil {
			r.Failures = append(r.Failures, Failure{Path: res.Path, Error: res.Err.Error()})
			continue
		}
		r.Files = append(r.Files, res.Result)
		r.Summary.Dependencies += len(res.Result.Dependencies)
		r.Summary.Warnings += len(res.Result.Warnings)
	}
	r.Summary.Files = len(results)
	r.Summary.Failures = len(r.Failures)
	return r
}

// Render writes the report in the given format.
func Render(w io.Writer, r *Report, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, r)
	case FormatYAML:
		return writeYAML(w, r)
	case FormatTable:
		return renderTable(w, r)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// RenderComponents writes aggregated components in the given format.
func RenderComponents(w io.Writer, components []models.Component, format Format) error {
	if components == nil {
		components = []models.Component{}
	}
	switch format {
	case FormatJSON:
		return writeJSON(w, components)
	case FormatYAML:
		return writeYAML(w, components)
	case FormatTable:
		return renderComponentTable(w, components)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false
	return tbl
}

func renderTable(w io.Writer, r *Report) error {
	tbl := newTable()
	tbl.AppendHeader(table.Row{"File", "Line", "Kind", "Visibility", "Origin", "Path", "Alias"})
	for _, fd := range r.Files {
		for _, d := range fd.Dependencies {
			alias := ""
			if name, ok := d.AliasName(); ok {
				alias = name
			}
			tbl.AppendRow(table.Row{fd.Path, d.Line, d.Kind, d.Visibility, d.Origin(), d.Path(), alias})
		}
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %s dependencies", humanize.Comma(int64(r.Summary.Dependencies)))})

	if _, err := fmt.Fprintln(w, tbl.Render()); err != nil {
		return err
	}

	warn := color.New(color.FgYellow)
	for _, fd := range r.Files {
		for _, wn := range fd.Warnings {
			stmt := strings.Join(strings.Fields(wn.Statement), " ")
			if _, err := warn.Fprintf(w, "⚠ %s:%d: %s: %s\n", fd.Path, wn.Line, wn.Reason, stmt); err != nil {
				return err
			}
		}
	}

	fail := color.New(color.FgRed)
	for _, f := range r.Failures {
		if _, err := fail.Fprintf(w, "✗ %s: %s\n", f.Path, f.Error); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "%s %s scanned, %s, %s, %s\n",
		color.New(color.FgGreen).Sprint("✓"),
		plural(r.Summary.Files, "file"),
		plural(r.Summary.Dependencies, "dependency"),
		plural(r.Summary.Warnings, "warning"),
		plural(r.Summary.Failures, "failure"),
	)
	return err
}

func renderComponentTable(w io.Writer, components []models.Component) error {
	tbl := newTable()
	tbl.AppendHeader(table.Row{"Component", "Origin", "Uses", "Files", "Paths"})
	for _, c := range components {
		root := c.Root
		if root == "" {
			root = "(relative)"
		}
		tbl.AppendRow(table.Row{root, c.Origin, c.Count, len(c.Files), len(c.Paths)})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %s components", humanize.Comma(int64(len(components))))})

	_, err := fmt.Fprintln(w, tbl.Render())
	return err
}

func plural(n int, noun string) string {
	s := humanize.Comma(int64(n)) + " " + noun
	if n == 1 {
		return s
	}
	if strings.HasSuffix(noun, "y") {
		return strings.TrimSuffix(s, "y") + "ies"
	}
	return s + "s"
}

