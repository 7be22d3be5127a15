package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"receiptd/internal/domain"
)

type keySetDoc struct {
	Name      string        `json:"name"`
	SourceURL string        `json:"source_url,omitempty"`
	FetchedAt string        `json:"fetched_at"`
	Keys      domain.KeySet `json:"jwks"`
}

func newKeysCmd(app *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage key sets pinned in the registry",
	}
	cmd.AddCommand(newKeysImportCmd(app), newKeysShowCmd(app), newKeysListCmd(app))
	return cmd
}

func newKeysImportCmd(app *cli) *cobra.Command {
	var name, jwks string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Pin a key set under a name, from a file or a URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name = strings.TrimSpace(name)
			if name == "" || jwks == "" {
				return fmt.Errorf("%w: --name and --jwks are required", domain.ErrInvalidFormat)
			}
			source, closeFn, err := openKeySets(app.cfg, true)
			if err != nil {
				return err
			}
			defer closeFn()

			var rec domain.StoredKeySet
			if isURL(jwks) {
				rec, err = source.ImportURL(cmd.Context(), name, jwks)
			} else {
				var ks domain.KeySet
				if ks, err = app.readKeySet(cmd, jwks); err != nil {
					return err
				}
				rec, err = source.Import(cmd.Context(), name, "", ks)
			}
			if err != nil {
				return err
			}
			return writeCanonical(cmd, toKeySetDoc(rec))
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "registry name")
	cmd.Flags().StringVar(&jwks, "jwks", "", "JWKS file, - for stdin, or http(s) URL")
	return cmd
}

func newKeysShowCmd(app *cli) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a pinned key set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			source, closeFn, err := openKeySets(app.cfg, true)
			if err != nil {
				return err
			}
			defer closeFn()
			rec, err := source.Lookup(cmd.Context(), name)
			if err != nil {
				return err
			}
			return writeCanonical(cmd, toKeySetDoc(*rec))
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "registry name")
	return cmd
}

func newKeysListCmd(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every pinned key set, ordered by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			source, closeFn, err := openKeySets(app.cfg, true)
			if err != nil {
				return err
			}
			defer closeFn()
			records, err := source.List(cmd.Context())
			if err != nil {
				return err
			}
			docs := make([]keySetDoc, 0, len(records))
			for _, rec := range records {
				docs = append(docs, toKeySetDoc(rec))
			}
			return writeCanonical(cmd, struct {
				KeySets []keySetDoc `json:"key_sets"`
			}{docs})
		},
	}
}

func toKeySetDoc(rec domain.StoredKeySet) keySetDoc {
	return keySetDoc{
		Name:      rec.Name,
		SourceURL: rec.SourceURL,
		FetchedAt: rec.FetchedAt.UTC().Format(time.RFC3339),
		Keys:      rec.Keys,
	}
}
