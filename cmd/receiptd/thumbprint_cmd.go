package main

import (
	"github.com/spf13/cobra"

	"receiptd/internal/domain"
	"receiptd/internal/infra/crypto"
)

type thumbprintLine struct {
	Index      int    `json:"index"`
	Kid        string `json:"kid,omitempty"`
	Kty        string `json:"kty"`
	Crv        string `json:"crv,omitempty"`
	Alg        string `json:"alg,omitempty"`
	Thumbprint string `json:"thumbprint,omitempty"`
	Error      string `json:"error,omitempty"`
}

func newThumbprintCmd(app *cli) *cobra.Command {
	var jwks string
	cmd := &cobra.Command{
		Use:   "thumbprint",
		Short: "Print the RFC 7638 thumbprint of every key in a JWKS",
		Long: `Print one canonical JSON line per key with its RFC 7638 thumbprint.
A key whose thumbprint cannot be computed gets an error member instead and the
command exits 2 after printing every line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ks, err := app.readKeySet(cmd, jwks)
			if err != nil {
				return err
			}
			failed := false
			for i, key := range ks.Keys {
				line := thumbprintLine{
					Index: i,
					Kid:   key.KeyID(),
					Kty:   key.Kty(),
					Crv:   key.Curve(),
					Alg:   key.Algorithm(),
				}
				if tp, err := crypto.Thumbprint(key); err != nil {
					line.Error = domain.ErrorCode(err) + ": " + err.Error()
					failed = true
				} else {
					line.Thumbprint = tp
				}
				if err := writeCanonical(cmd, line); err != nil {
					return err
				}
			}
			if failed {
				return &exitCodeError{code: exitError}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jwks, "jwks", "-", "JWKS file, - for stdin, or http(s) URL")
	return cmd
}
