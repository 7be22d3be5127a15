package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"receiptd/internal/domain"
	"receiptd/internal/infra/crypto"
	"receiptd/internal/logger"
	"receiptd/internal/usecase"
)

func newVerifyCmd(app *cli) *cobra.Command {
	var (
		receiptPath string
		jwks        string
		keySetName  string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a receipt and print the verdict",
		Long: `Verify a receipt against a key set and print the verdict as canonical JSON.

Exit status is 0 when the receipt is accepted, 1 when it is rejected and 2 on
any system error (unreadable input, malformed key set, network failure).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if receiptPath == "" {
				return &exitCodeError{code: exitError, err: fmt.Errorf("%w: --receipt is required", domain.ErrInvalidFormat)}
			}
			if jwks != "" && keySetName != "" {
				return &exitCodeError{code: exitError, err: fmt.Errorf("%w: --jwks and --key-set are mutually exclusive", domain.ErrInvalidFormat)}
			}
			if receiptPath == "-" && jwks == "-" {
				return &exitCodeError{code: exitError, err: fmt.Errorf("%w: only one input can be read from stdin", domain.ErrInvalidFormat)}
			}

			raw, err := readInput(cmd, receiptPath)
			if err != nil {
				return &exitCodeError{code: exitError, err: fmt.Errorf("read receipt: %w", err)}
			}
			var receipt domain.Receipt
			if err := json.Unmarshal(raw, &receipt); err != nil {
				return &exitCodeError{code: exitError, err: fmt.Errorf("%w: receipt: %v", domain.ErrInvalidFormat, err)}
			}

			ks, err := app.loadKeySet(cmd, jwks, keySetName)
			if err != nil {
				return &exitCodeError{code: exitError, err: err}
			}

			verdict, err := usecase.NewVerifyReceipt(crypto.NewService()).Execute(receipt, ks)
			if err != nil {
				return &exitCodeError{code: exitError, err: err}
			}
			logger.Debug("verification finished", "kid", receipt.Kid, "ok", verdict.OK, "reason", verdict.Reason)
			if err := writeCanonical(cmd, verdict); err != nil {
				return &exitCodeError{code: exitError, err: err}
			}
			if !verdict.OK {
				return &exitCodeError{code: exitRejected}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&receiptPath, "receipt", "", "receipt JSON file, or - for stdin")
	cmd.Flags().StringVar(&jwks, "jwks", "", "JWKS file, - for stdin, or http(s) URL (default: config jwks_url)")
	cmd.Flags().StringVar(&keySetName, "key-set", "", "name of a key set pinned in the registry")
	return cmd
}

func (a *cli) loadKeySet(cmd *cobra.Command, jwks, name string) (domain.KeySet, error) {
	name = strings.TrimSpace(name)
	if jwks == "" && name == "" {
		jwks = a.cfg.JWKSURL
	}
	switch {
	case name != "":
		source, closeFn, err := openKeySets(a.cfg, true)
		if err != nil {
			return domain.KeySet{}, err
		}
		defer closeFn()
		return source.FromRegistry(cmd.Context(), name)
	case jwks != "":
		return a.readKeySet(cmd, jwks)
	default:
		return domain.KeySet{}, fmt.Errorf("%w: one of --jwks or --key-set is required", domain.ErrInvalidFormat)
	}
}

// readKeySet loads a JWKS from a file, stdin ("-") or an http(s) URL.
func (a *cli) readKeySet(cmd *cobra.Command, jwks string) (domain.KeySet, error) {
	if isURL(jwks) {
		source, _, err := openKeySets(a.cfg, false)
		if err != nil {
			return domain.KeySet{}, err
		}
		logger.Debug("fetching key set", "url", jwks)
		return source.FromURL(cmd.Context(), jwks)
	}
	raw, err := readInput(cmd, jwks)
	if err != nil {
		return domain.KeySet{}, fmt.Errorf("read jwks: %w", err)
	}
	return domain.ParseKeySet(raw)
}
