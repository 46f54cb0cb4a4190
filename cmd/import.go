package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bricodata/retail-cli/internal/dataset"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Download raw retail data from remote sources",
	Long:  "Fetches the products, customers, and transactions tables over HTTP(S) or FTP into the raw data directory. Spreadsheet exports (.xlsx) are converted to the canonical CSVs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		sources := map[string]string{}
		for flag, file := range map[string]string{
			"products-url":     dataset.ProductsFile,
			"customers-url":    dataset.CustomersFile,
			"transactions-url": dataset.TransactionsFile,
		} {
			if u, _ := cmd.Flags().GetString(flag); u != "" {
				sources[u] = file
			}
		}
		if len(sources) == 0 {
			return fmt.Errorf("nothing to import: pass at least one of --products-url, --customers-url, --transactions-url")
		}

		fetcher := dataset.NewFetcher(dataset.FetchOptions{
			Timeout:        time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			RequestsPerSec: cfg.Fetch.RequestsPerSec,
		})

		g, ctx := errgroup.WithContext(cmd.Context())
		for url, file := range sources {
			g.Go(func() error {
				dest := filepath.Join(cfg.Data.RawDir, file)
				if strings.HasSuffix(strings.ToLower(url), ".xlsx") {
					tmp := dest + ".xlsx"
					if _, err := fetcher.Fetch(ctx, url, tmp); err != nil {
						return err
					}
					defer os.Remove(tmp)
					if err := dataset.ConvertXLSX(tmp, dest); err != nil {
						return err
					}
				} else if _, err := fetcher.Fetch(ctx, url, dest); err != nil {
					return err
				}
				zap.L().Info("raw table imported", zap.String("url", url), zap.String("dest", dest))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Imported %d table(s) into %s\n", len(sources), cfg.Data.RawDir)
		return nil
	},
}

func init() {
	importCmd.Flags().String("products-url", "", "remote products table (csv or xlsx)")
	importCmd.Flags().String("customers-url", "", "remote customers table (csv or xlsx)")
	importCmd.Flags().String("transactions-url", "", "remote transactions table (csv or xlsx)")
	rootCmd.AddCommand(importCmd)
}
