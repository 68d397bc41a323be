// Package output renders command results as JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Formats accepted by --output.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// AddFlag registers the --output/-o flag on cmd.
func AddFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "output", "o", FormatJSON, "Output format: json or yaml")
}

// Validate rejects unknown formats before any work is done.
func Validate(format string) error {
	switch format {
	case FormatJSON, FormatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q, use json or yaml", format)
	}
}

// Write encodes v to w. YAML output keeps the JSON field names, so both
// formats match the HTTP API bodies.
func Write(w io.Writer, format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	if format != FormatYAML {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}
	return enc.Close()
}
