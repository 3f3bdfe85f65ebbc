package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

type format string

const (
	formatTable format = "table"
	formatJSON  format = "json"
	formatYAML  format = "yaml"
)

func parseFormat(s string) (format, error) {
	switch f := format(strings.ToLower(strings.TrimSpace(s))); f {
	case formatTable, formatJSON, formatYAML:
		return f, nil
	case "yml":
		return formatYAML, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
}

// detectFormat picks table output for terminals and JSON for pipes.
func detectFormat(f *os.File) format {
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return formatTable
	}
	return formatJSON
}

// table is one block of table output.
type table struct {
	title   string
	headers []string
	align   []tw.Align
	rows    [][]string
}

type printer struct {
	w      io.Writer
	format format
}

func newPrinter(cmd *cli.Command) (*printer, error) {
	p := &printer{w: cmd.Root().Writer, format: formatJSON}
	if p.w == nil {
		p.w = os.Stdout
	}
	if s := cmd.String("output"); s != "" {
		f, err := parseFormat(s)
		if err != nil {
			return nil, err
		}
		p.format = f
		return p, nil
	}
	if f, ok := p.w.(*os.File); ok {
		p.format = detectFormat(f)
	}
	return p, nil
}

// print writes data as JSON or YAML, or the given tables in table mode.
func (p *printer) print(data any, tables ...table) error {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case formatYAML:
		return writeYAML(p.w, data)
	}

	for i, t := range tables {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		if err := renderTable(p.w, t); err != nil {
			return err
		}
	}
	return nil
}

// message prints a one-line confirmation in table mode and data otherwise.
func (p *printer) message(data any, msg string, args ...any) error {
	if p.format == formatTable {
		_, err := fmt.Fprintf(p.w, msg+"\n", args...)
		return err
	}
	return p.print(data)
}

func renderTable(w io.Writer, t table) error {
	if t.title != "" {
		fmt.Fprintln(w, t.title)
	}
	if len(t.rows) == 0 {
		_, err := fmt.Fprintln(w, "(none)")
		return err
	}

	config := tablewriter.Config{}
	if len(t.align) > 0 {
		config.Header.Alignment = tw.CellAlignment{PerColumn: t.align}
		config.Row.Alignment = tw.CellAlignment{PerColumn: t.align}
	}
	tbl := tablewriter.NewTable(w, tablewriter.WithConfig(config))

	headers := make([]any, len(t.headers))
	for i, h := range t.headers {
		headers[i] = h
	}
	tbl.Header(headers...)

	for _, row := range t.rows {
		cells := make([]any, len(row))
		for i, c := range row {
			cells[i] = c
		}
		if err := tbl.Append(cells...); err != nil {
			return err
		}
	}
	return tbl.Render()
}

// writeYAML re-encodes data through its JSON form so YAML keys match the
// API field names and keep their declaration order.
func writeYAML(w io.Writer, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return err
	}
	blockStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

// blockStyle clears the flow and quoting styles inherited from JSON.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
