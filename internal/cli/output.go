package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// printer renders command results in the --output format.
type printer struct {
	w      io.Writer
	format string
}

func newPrinter(cmd *cobra.Command) (*printer, error) {
	switch outputFormat {
	case "", "table", "json", "yaml":
	default:
		return nil, fmt.Errorf("unknown output format %q (use table, json or yaml)", outputFormat)
	}
	format := outputFormat
	if format == "" {
		format = "table"
	}
	return &printer{w: cmd.OutOrStdout(), format: format}, nil
}

// structured writes v as JSON or YAML and reports true, or reports false
// when the format is table and the caller should render text itself.
func (p *printer) structured(v any) (bool, error) {
	switch p.format {
	case "json":
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

// table returns an aligned writer; callers must Flush it.
func (p *printer) table() *tabwriter.Writer {
	return tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
}

// progressOutput is where live progress goes: stdout for tables, stderr
// when stdout carries structured output.
func (p *printer) progressOutput(cmd *cobra.Command) io.Writer {
	if p.format == "table" {
		return cmd.OutOrStdout()
	}
	return cmd.ErrOrStderr()
}
