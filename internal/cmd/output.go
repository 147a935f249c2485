package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/practicedesk/internal/tui"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// printer writes command results in the selected --output format.
type printer struct {
	w      io.Writer
	format string
	styles tui.Styles
}

func newPrinter(w io.Writer, format string) (*printer, error) {
	switch format {
	case formatText, formatJSON, formatYAML:
	default:
		return nil, NewErrorWithSuggestions(
			fmt.Sprintf("unsupported output format %q", format),
			nil,
			"Use --output text, --output json or --output yaml",
		)
	}
	return &printer{w: w, format: format, styles: tui.DefaultStyles()}, nil
}

// print renders v as JSON or YAML, or calls text for the text format.
func (p *printer) print(v any, text func() string) error {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)

	case formatYAML:
		// Keys follow the json tags so both formats read the same.
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		return enc.Close()

	default:
		_, err := fmt.Fprintln(p.w, text())
		return err
	}
}

// message prints a one-line result; structured formats get {"message": msg}.
func (p *printer) message(msg string) error {
	return p.print(map[string]string{"message": msg}, func() string {
		return tui.RenderMessage(msg, p.styles)
	})
}
