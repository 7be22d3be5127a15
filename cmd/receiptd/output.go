package main

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"receiptd/internal/infra/crypto"
)

// readInput reads path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func writeOutput(cmd *cobra.Command, path string, payload []byte) error {
	if path == "" || path == "-" {
		out := cmd.OutOrStdout()
		if _, err := out.Write(payload); err != nil {
			return err
		}
		_, err := io.WriteString(out, "\n")
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func writeCanonical(cmd *cobra.Command, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	canonical, err := crypto.CanonicalizeJSON(raw)
	if err != nil {
		return err
	}
	return writeOutput(cmd, "", canonical)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
