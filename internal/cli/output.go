package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/facturae-co/dian-gateway/app/internal/invoice"
	"github.com/spf13/cobra"
)

// readFields decodes a JSON file of invoice fields. Unknown properties are rejected.
func readFields(path string) (invoice.DocumentFields, error) {
	var fields invoice.DocumentFields

	f, err := os.Open(path)
	if err != nil {
		return fields, fmt.Errorf("failed to open fields file: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fields); err != nil {
		return fields, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return fields, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeOutput writes data to path, or to the command output when path is empty or "-".
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(data), path)
	return nil
}
