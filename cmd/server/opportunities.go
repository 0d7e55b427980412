package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nbrons/perp-prophet/internal/services"
)

type opportunitiesOptions struct {
	json     bool
	notional string
	ltv      string
	margin   string
}

func newOpportunitiesCmd() *cobra.Command {
	opts := &opportunitiesOptions{}
	cmd := &cobra.Command{
		Use:     "opportunities",
		Aliases: []string{"opps"},
		Short:   "Fetch live rates and print the strategy advisory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpportunities(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the report as JSON")
	cmd.Flags().StringVar(&opts.notional, "notional", "", "Override the notional amount")
	cmd.Flags().StringVar(&opts.ltv, "ltv", "", "Override the average loan-to-value ratio")
	cmd.Flags().StringVar(&opts.margin, "margin", "", "Override the recommendation margin in APY points")
	return cmd
}

func runOpportunities(cmd *cobra.Command, opts *opportunitiesOptions) error {
	var overrides services.EvaluationOverrides
	var err error
	if overrides.NotionalAmount, err = parseOverride("notional", opts.notional); err != nil {
		return err
	}
	if overrides.AverageLTV, err = parseOverride("ltv", opts.ltv); err != nil {
		return err
	}
	if overrides.RecommendMargin, err = parseOverride("margin", opts.margin); err != nil {
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()
	logger.SetOutput(cmd.ErrOrStderr())

	app, err := newApplication(cmd.Context(), cfg, logger, false)
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := app.opportunities.Evaluate(cmd.Context(), overrides)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.json {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	text, err := app.advisory.Render(report, nil)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, text)
	return err
}
