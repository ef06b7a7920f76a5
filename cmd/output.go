package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

const (
	formatText  = "text"
	formatJSON  = "json"
	formatYAML  = "yaml"
	formatTable = "table"
)

// result is one resolution as printed by the CLI.
type result struct {
	Dir   string `json:"dir,omitempty" yaml:"dir,omitempty"`
	Path  string `json:"path" yaml:"path"`
	Found bool   `json:"found" yaml:"found"`
}

// printer writes results in one of the output formats. Text prints the path
// (prefixed by the start directory and a tab when Dir is set), json prints
// one object per line, yaml one document per result and table one table per
// call.
type printer struct {
	w      io.Writer
	format string
	json   *json.Encoder
	yaml   *yaml.Encoder
}

func newPrinter(w io.Writer, format string) *printer {
	p := &printer{w: w, format: format}
	switch format {
	case formatJSON:
		p.json = json.NewEncoder(w)
	case formatYAML:
		p.yaml = yaml.NewEncoder(w)
		p.yaml.SetIndent(2)
	}
	return p
}

func (p *printer) print(r result) error {
	switch p.format {
	case formatJSON:
		return p.json.Encode(r)
	case formatYAML:
		return p.yaml.Encode(r)
	case formatTable:
		return p.table([]result{r})
	default:
		if r.Dir != "" {
			_, err := fmt.Fprintf(p.w, "%s\t%s\n", r.Dir, r.Path)
			return err
		}
		_, err := fmt.Fprintln(p.w, r.Path)
		return err
	}
}

// printAll writes rs as a single json array or yaml sequence; text prints
// one line per result.
func (p *printer) printAll(rs []result) error {
	switch p.format {
	case formatJSON:
		return p.json.Encode(rs)
	case formatYAML:
		return p.yaml.Encode(rs)
	case formatTable:
		return p.table(rs)
	default:
		for _, r := range rs {
			if err := p.print(r); err != nil {
				return err
			}
		}
		return nil
	}
}

func (p *printer) table(rs []result) error {
	withDir := false
	for _, r := range rs {
		if r.Dir != "" {
			withDir = true
			break
		}
	}

	table := tablewriter.NewWriter(p.w)
	if withDir {
		table.SetHeader([]string{"Dir", "Path", "Found"})
	} else {
		table.SetHeader([]string{"Path", "Found"})
	}

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, r := range rs {
		row := []string{r.Path, strconv.FormatBool(r.Found)}
		if withDir {
			row = append([]string{r.Dir}, row...)
		}
		table.Append(row)
	}

	table.Render()
	return nil
}

func (p *printer) close() error {
	if p.yaml != nil {
		return p.yaml.Close()
	}
	return nil
}
