package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"receiptd/internal/domain"
	"receiptd/internal/infra/crypto"
)

type receiptSummary struct {
	Type        string          `json:"type"`
	Alg         string          `json:"alg,omitempty"`
	Kid         string          `json:"kid,omitempty"`
	HeaderKid   string          `json:"header_kid,omitempty"`
	HeaderError string          `json:"header_error,omitempty"`
	PayloadHash string          `json:"payload_jcs_sha256,omitempty"`
	ReceiptID   string          `json:"receipt_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

type keySetSummary struct {
	Type string           `json:"type"`
	Keys []thumbprintLine `json:"keys"`
}

func newInspectCmd(_ *cli) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Describe a receipt or a JWKS without verifying it",
		Long: `Describe a receipt (alg, kid, hash and id) or a JWKS (one line per key with
its thumbprint). FILE may be - for stdin. Nothing is verified; a document that
is neither a receipt nor a JWKS exits 2.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "table" && format != "json" {
				return fmt.Errorf("%w: --format must be table or json", domain.ErrInvalidFormat)
			}
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			obj, err := domain.DecodeObject(raw)
			if err != nil {
				return err
			}

			_, hasKeys := obj["keys"]
			_, hasProtected := obj["protected"]
			_, hasSignature := obj["signature"]
			switch {
			case hasKeys:
				ks, err := domain.ParseKeySet(raw)
				if err != nil {
					return err
				}
				summary := summarizeKeySet(ks)
				if format == "json" {
					return writeCanonical(cmd, summary)
				}
				return printKeySetTable(cmd.OutOrStdout(), summary)
			case hasProtected && hasSignature:
				summary, err := summarizeReceipt(obj)
				if err != nil {
					return err
				}
				if format == "json" {
					return writeCanonical(cmd, summary)
				}
				return printReceiptTable(cmd.OutOrStdout(), summary)
			default:
				return fmt.Errorf("%w: unknown document, expected a receipt or a JWKS", domain.ErrInvalidFormat)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	return cmd
}

func summarizeKeySet(ks domain.KeySet) keySetSummary {
	summary := keySetSummary{Type: "jwks", Keys: make([]thumbprintLine, 0, len(ks.Keys))}
	for i, key := range ks.Keys {
		line := thumbprintLine{Index: i, Kid: key.KeyID(), Kty: key.Kty(), Crv: key.Curve(), Alg: key.Algorithm()}
		if tp, err := crypto.Thumbprint(key); err != nil {
			line.Error = domain.ErrorCode(err) + ": " + err.Error()
		} else {
			line.Thumbprint = tp
		}
		summary.Keys = append(summary.Keys, line)
	}
	return summary
}

// summarizeReceipt reads receipt members by exact name. A header that does
// not decode is reported, not returned as an error.
func summarizeReceipt(obj map[string]json.RawMessage) (receiptSummary, error) {
	summary := receiptSummary{Type: "receipt"}
	var protected string
	for name, dst := range map[string]*string{
		"protected":          &protected,
		"kid":                &summary.Kid,
		"payload_jcs_sha256": &summary.PayloadHash,
		"receipt_id":         &summary.ReceiptID,
	} {
		v, _, err := domain.StringMember(obj, name)
		if err != nil {
			return receiptSummary{}, err
		}
		*dst = v
	}
	if payload, ok := obj["payload"]; ok {
		summary.Payload = payload
	}

	raw, err := crypto.DecodeBase64URL(protected)
	if err == nil {
		var header domain.Header
		if header, err = domain.ParseHeader(raw); err == nil {
			summary.Alg = header.Alg
			summary.HeaderKid = header.Kid
		}
	}
	if err != nil {
		summary.HeaderError = domain.ErrorCode(err) + ": " + err.Error()
	}
	return summary, nil
}

func printKeySetTable(w io.Writer, summary keySetSummary) error {
	if _, err := fmt.Fprintf(w, "JWKS with %d key(s):\n", len(summary.Keys)); err != nil {
		return err
	}
	for _, k := range summary.Keys {
		tp := k.Thumbprint
		if k.Error != "" {
			tp = "error: " + k.Error
		}
		if _, err := fmt.Fprintf(w, "  Key %d: %s %s (kid: %s, alg: %s) thumbprint: %s\n",
			k.Index, k.Kty, orNone(k.Crv), orNone(k.Kid), orNone(k.Alg), tp); err != nil {
			return err
		}
	}
	return nil
}

func printReceiptTable(w io.Writer, summary receiptSummary) error {
	alg := summary.Alg
	if alg == "" {
		alg = "unknown"
	}
	rows := []string{
		fmt.Sprintf("Receipt (%s):", alg),
		"  Kid: " + orNone(summary.Kid),
	}
	if summary.HeaderError != "" {
		rows = append(rows, "  Header: "+summary.HeaderError)
	} else {
		rows = append(rows, "  Algorithm: "+summary.Alg, "  Header kid: "+summary.HeaderKid)
	}
	if summary.PayloadHash != "" {
		rows = append(rows, "  JCS Hash: "+abbreviate(summary.PayloadHash))
	}
	if summary.ReceiptID != "" {
		rows = append(rows, "  Receipt ID: "+abbreviate(summary.ReceiptID))
	}
	if summary.Payload != nil {
		payload := string(summary.Payload)
		if canonical, err := crypto.CanonicalizeJSON(summary.Payload); err == nil {
			payload = string(canonical)
		}
		rows = append(rows, "  Payload: "+payload)
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(w, row); err != nil {
			return err
		}
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func abbreviate(s string) string {
	if len(s) <= 16 {
		return s
	}
	return s[:16] + "..."
}
