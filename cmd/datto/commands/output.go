package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

const (
	notAvailable = "N/A"
	masked       = "***"
)

// render writes v in the --output format. table draws the human-readable form.
func render(cmd *cli.Command, v any, table func(w io.Writer) error) error {
	w := cmd.Root().Writer

	switch format := cmd.String("output"); format {
	case outputJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(v); err != nil {
			return fmt.Errorf("encoding output as JSON: %w", err)
		}
		return nil
	case outputYAML:
		// Round-trip through JSON so YAML keys match the API field names
		generic, err := toGeneric(v)
		if err != nil {
			return err
		}
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(generic); err != nil {
			return fmt.Errorf("encoding output as YAML: %w", err)
		}
		return encoder.Close()
	case outputTable, "":
		return table(w)
	default:
		return fmt.Errorf("unsupported output format %q (expected: table, json, yaml)", format)
	}
}

func toGeneric(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding output: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var generic any
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("encoding output: %w", err)
	}
	return generic, nil
}

// propertyTable renders two-column key/value rows.
func propertyTable(w io.Writer, rows [][2]string) error {
	table := tablewriter.NewWriter(w)
	table.Header("Property", "Value")
	for _, row := range rows {
		if err := table.Append(row[0], row[1]); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	return table.Render()
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// formatMillis formats a Unix millisecond timestamp in UTC.
func formatMillis(ms int64) string {
	if ms <= 0 {
		return notAvailable
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// maskSecret keeps only the edges of a secret visible.
func maskSecret(s string) string {
	if len(s) <= 12 {
		return masked
	}
	return s[:4] + masked + s[len(s)-4:]
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
