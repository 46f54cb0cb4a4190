package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bricodata/retail-cli/internal/dataset"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate synthetic raw retail data",
	Long:  "Writes synthetic products, customers, and transactions CSVs into the raw data directory.",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := dataset.DefaultGenerateOptions()

		if n, _ := cmd.Flags().GetInt("products"); n > 0 {
			opts.Products = n
		}
		if n, _ := cmd.Flags().GetInt("customers"); n > 0 {
			opts.Customers = n
		}
		if n, _ := cmd.Flags().GetInt("transactions"); n > 0 {
			opts.Transactions = n
		}
		if seed, _ := cmd.Flags().GetInt64("seed"); cmd.Flags().Changed("seed") {
			opts.Seed = seed
		}
		if s, _ := cmd.Flags().GetString("start"); s != "" {
			t, err := time.Parse("2006-01-02", s)
			if err != nil {
				return eris.Wrapf(err, "parse --start %q", s)
			}
			opts.StartDate = t
		}
		if s, _ := cmd.Flags().GetString("end"); s != "" {
			t, err := time.Parse("2006-01-02", s)
			if err != nil {
				return eris.Wrapf(err, "parse --end %q", s)
			}
			opts.EndDate = t
		}

		dir, _ := cmd.Flags().GetString("out")
		if dir == "" {
			dir = cfg.Data.RawDir
		}

		if err := dataset.GenerateRaw(dir, opts); err != nil {
			return err
		}

		zap.L().Info("raw data generated",
			zap.String("dir", dir),
			zap.Int("products", opts.Products),
			zap.Int("customers", opts.Customers),
			zap.Int("transactions", opts.Transactions),
		)
		fmt.Fprintf(os.Stdout, "Wrote %d products, %d customers, %d transactions to %s\n",
			opts.Products, opts.Customers, opts.Transactions, dir)
		return nil
	},
}

func init() {
	generateCmd.Flags().Int("products", 0, "number of products (default 5000)")
	generateCmd.Flags().Int("customers", 0, "number of customers (default 50000)")
	generateCmd.Flags().Int("transactions", 0, "number of transactions (default 200000)")
	generateCmd.Flags().Int64("seed", 42, "random seed")
	generateCmd.Flags().String("start", "", "first transaction date (YYYY-MM-DD)")
	generateCmd.Flags().String("end", "", "last transaction date (YYYY-MM-DD)")
	generateCmd.Flags().String("out", "", "output directory (default from config)")
	rootCmd.AddCommand(generateCmd)
}
