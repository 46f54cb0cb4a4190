package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bricodata/retail-cli/internal/service"
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Train and query the daily sales forecaster",
}

var forecastTrainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the forecaster on the raw transaction log",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, closeStore, err := newService(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		metrics, err := svc.TrainForecast(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Training days:\t%d\n", metrics.Days)
		fmt.Fprintf(w, "Range:\t%s to %s\n",
			metrics.TrainStart.Format("2006-01-02"), metrics.TrainEnd.Format("2006-01-02"))
		fmt.Fprintf(w, "Daily mean:\t%s\n", currencyPrinter.Sprintf("%.2f", metrics.DailyMean))
		fmt.Fprintf(w, "Residual sigma:\t%.2f\n", metrics.Sigma)
		w.Flush()

		if report, _ := cmd.Flags().GetString("report"); report != "" {
			if err := writeReport(report, metrics); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Report written to %s\n", report)
		}
		return nil
	},
}

var forecastPredictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Forecast the next days of daily sales",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := service.New(cfg, nil)
		if err := svc.LoadForecast(); err != nil {
			return err
		}

		days, _ := cmd.Flags().GetInt("days")
		points, err := svc.Forecast(days)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tFORECAST\tLOWER\tUPPER")
		for _, p := range points {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				p.Date.Format("2006-01-02"),
				currencyPrinter.Sprintf("%.2f", clampNonNegative(p.Value)),
				currencyPrinter.Sprintf("%.2f", clampNonNegative(p.Lower)),
				currencyPrinter.Sprintf("%.2f", clampNonNegative(p.Upper)))
		}
		return w.Flush()
	},
}

var forecastTomorrowCmd = &cobra.Command{
	Use:   "tomorrow",
	Short: "Forecast tomorrow's total sales",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := service.New(cfg, nil)
		if err := svc.LoadForecast(); err != nil {
			return err
		}

		p, err := svc.TomorrowForecast()
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "%s: %s (95%% interval %s to %s)\n",
			p.Date.Format("2006-01-02"),
			currencyPrinter.Sprintf("%.2f", clampNonNegative(p.Value)),
			currencyPrinter.Sprintf("%.2f", clampNonNegative(p.Lower)),
			currencyPrinter.Sprintf("%.2f", clampNonNegative(p.Upper)))
		return nil
	},
}

func init() {
	forecastTrainCmd.Flags().String("report", "", "write training metrics as YAML to this path")
	forecastPredictCmd.Flags().Int("days", 7, "forecast horizon in days")

	forecastCmd.AddCommand(forecastTrainCmd)
	forecastCmd.AddCommand(forecastPredictCmd)
	forecastCmd.AddCommand(forecastTomorrowCmd)
	rootCmd.AddCommand(forecastCmd)
}
