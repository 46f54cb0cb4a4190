package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/bricodata/retail-cli/internal/model"
	"github.com/bricodata/retail-cli/internal/service"
)

// currencyPrinter formats monetary amounts with thousands separators.
var currencyPrinter = message.NewPrinter(language.EuropeanSpanish)

var churnCmd = &cobra.Command{
	Use:   "churn",
	Short: "Train and query the customer churn model",
}

var churnTrainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the churn classifier on the processed feature table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, closeStore, err := newService(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		metrics, err := svc.TrainChurn(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Train accuracy:\t%.4f\n", metrics.TrainAccuracy)
		fmt.Fprintf(w, "Test accuracy:\t%.4f\n", metrics.TestAccuracy)
		fmt.Fprintf(w, "Precision:\t%.4f\n", metrics.Precision)
		fmt.Fprintf(w, "Recall:\t%.4f\n", metrics.Recall)
		fmt.Fprintf(w, "F1:\t%.4f\n", metrics.F1)
		fmt.Fprintf(w, "AUC:\t%.4f\n", metrics.AUC)
		fmt.Fprintf(w, "Confusion (TN FP FN TP):\t%d %d %d %d\n",
			metrics.Confusion.TN, metrics.Confusion.FP, metrics.Confusion.FN, metrics.Confusion.TP)
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

var churnPredictCmd = &cobra.Command{
	Use:   "predict [customer-id...]",
	Short: "Predict churn probability for customers",
	Long:  "Predicts for the given customer ids, or for every customer in the feature table when none are given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := service.New(cfg, nil)
		if err := svc.LoadChurn(); err != nil {
			return err
		}
		if err := svc.EnsureFeatures(); err != nil {
			return err
		}

		feats := svc.Features()
		if len(args) > 0 {
			selected := make([]model.CustomerFeature, 0, len(args))
			for _, a := range args {
				id, err := strconv.ParseInt(a, 10, 64)
				if err != nil {
					return eris.Wrapf(model.ErrData, "invalid customer id %q", a)
				}
				f, ok := findCustomer(feats, id)
				if !ok {
					return eris.Wrapf(model.ErrNotFound, "customer %d", id)
				}
				selected = append(selected, f)
			}
			feats = selected
		}

		rows, err := svc.FilterAtRisk(0)
		if err != nil {
			return err
		}
		probByID := make(map[int64]float64, len(rows))
		for _, r := range rows {
			probByID[r.CustomerID] = r.Probability
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CUSTOMER\tRECENCY\tFREQUENCY\tMONETARY\tPROBABILITY\tTIER")
		for _, f := range feats {
			p := probByID[f.CustomerID]
			fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%.4f\t%s\n",
				f.CustomerID, f.Recency, f.Frequency,
				currencyPrinter.Sprintf("%.2f", f.Monetary),
				p, service.RiskTier(p))
		}
		return w.Flush()
	},
}

var churnImportanceCmd = &cobra.Command{
	Use:   "importance",
	Short: "Show global feature importance of the churn model",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := service.New(cfg, nil)
		if err := svc.LoadChurn(); err != nil {
			return err
		}

		weights, err := svc.ChurnFeatureImportance()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FEATURE\tWEIGHT")
		for _, fw := range weights {
			fmt.Fprintf(w, "%s\t%.4f\n", fw.Feature, fw.Weight)
		}
		return w.Flush()
	},
}

var churnAtRiskCmd = &cobra.Command{
	Use:   "at-risk",
	Short: "List customers whose churn probability exceeds a threshold",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := service.New(cfg, nil)
		if err := svc.LoadChurn(); err != nil {
			return err
		}

		threshold, _ := cmd.Flags().GetFloat64("threshold")
		rows, err := svc.FilterAtRisk(threshold)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(os.Stderr, "No customers above threshold.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CUSTOMER\tRECENCY\tMONETARY\tPROBABILITY\tTIER")
		for _, r := range rows {
			fmt.Fprintf(w, "%d\t%d\t%s\t%.4f\t%s\n",
				r.CustomerID, r.Recency,
				currencyPrinter.Sprintf("%.2f", r.Monetary),
				r.Probability, service.RiskTier(r.Probability))
		}
		return w.Flush()
	},
}

var churnExplainCmd = &cobra.Command{
	Use:   "explain <customer-id>",
	Short: "Explain one customer's churn prediction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(model.ErrData, "invalid customer id %q", args[0])
		}

		svc := service.New(cfg, nil)
		if err := svc.LoadChurn(); err != nil {
			return err
		}

		exp, err := svc.ExplainCustomer(id)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Customer %d: probability %.4f (baseline %.4f)\n",
			exp.CustomerID, exp.Probability, exp.Baseline)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FEATURE\tCONTRIBUTION")
		for _, a := range exp.Attributions {
			fmt.Fprintf(w, "%s\t%+.4f\n", a.Feature, a.Weight)
		}
		return w.Flush()
	},
}

func findCustomer(feats []model.CustomerFeature, id int64) (model.CustomerFeature, bool) {
	for _, f := range feats {
		if f.CustomerID == id {
			return f, true
		}
	}
	return model.CustomerFeature{}, false
}

func init() {
	churnTrainCmd.Flags().String("report", "", "write training metrics as YAML to this path")
	churnAtRiskCmd.Flags().Float64("threshold", 0.5, "probability threshold (strictly greater)")

	churnCmd.AddCommand(churnTrainCmd)
	churnCmd.AddCommand(churnPredictCmd)
	churnCmd.AddCommand(churnImportanceCmd)
	churnCmd.AddCommand(churnAtRiskCmd)
	churnCmd.AddCommand(churnExplainCmd)
	rootCmd.AddCommand(churnCmd)
}
