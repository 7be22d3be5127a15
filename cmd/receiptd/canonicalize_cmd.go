package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"receiptd/internal/infra/crypto"
)

func newCanonicalizeCmd(_ *cli) *cobra.Command {
	var inPath, outPath string
	cmd := &cobra.Command{
		Use:   "canonicalize",
		Short: "Rewrite a JSON document in RFC 8785 canonical form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readInput(cmd, inPath)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			canonical, err := crypto.CanonicalizeJSON(raw)
			if err != nil {
				return err
			}
			return writeOutput(cmd, outPath, canonical)
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "-", "JSON input file, or - for stdin")
	cmd.Flags().StringVar(&outPath, "out", "", "output file (default stdout)")
	return cmd
}
