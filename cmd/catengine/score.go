package main

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/neurobridge-cat/internal/assessment/scoring"
	"github.com/yungbote/neurobridge-cat/internal/domain/assessment"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
)

func scoreCmd() *cobra.Command {
	var (
		summariesPath string
		normsPath     string
		age           float64
		band          string
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score finished domain summaries",
		Long: `Read a YAML or JSON list of domain summaries ({domain, n, theta, sem}) and
print the composite report, rounded for presentation, as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if summariesPath == "" {
				return errors.Mark(errors.New("--summaries is required"), errors.ErrInvalidArgument)
			}
			raw, err := os.ReadFile(summariesPath)
			if err != nil {
				return errors.Mark(errors.Wrapf(err, "read summaries %s", summariesPath), errors.ErrConfig)
			}
			var summaries []assessment.DomainSummary
			if err := yaml.Unmarshal(raw, &summaries); err != nil {
				return errors.Mark(errors.Wrapf(err, "parse summaries %s", summariesPath), errors.ErrConfig)
			}

			cfg := baseConfig()
			if normsPath == "" {
				normsPath = cfg.NormPackPath
			}
			var pack *scoring.NormPack
			if normsPath != "" {
				if pack, err = scoring.LoadNormPack(normsPath); err != nil {
					return err
				}
			}

			opts := scoring.Options{AgeBandID: band}
			if cmd.Flags().Changed("age") {
				opts.AgeYears = &age
			}
			rep, err := scoring.NewScorer(pack, cfg.CompositeDefaultSEM, log).Score(summaries, opts)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rep.Rounded())
		},
	}

	cmd.Flags().StringVar(&summariesPath, "summaries", "", "Domain summaries file (YAML or JSON)")
	cmd.Flags().StringVar(&normsPath, "norms", "", "Norm pack file; defaults to CAT_NORM_PACK_PATH")
	cmd.Flags().Float64Var(&age, "age", 0, "Respondent age in years")
	cmd.Flags().StringVar(&band, "band", "", "Reference age band id from the norm pack")
	return cmd
}
