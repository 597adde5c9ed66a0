package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-cat/internal/assessment/bank"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
)

func validateCmd() *cobra.Command {
	var bankPath, formsPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate an item bank",
		Long: `Load an item bank, validate every item and print a per-domain summary.
Exits non-zero when any item is malformed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if bankPath == "" {
				bankPath = baseConfig().BankPath
			}
			if bankPath == "" {
				return errors.Mark(errors.New("--bank is required"), errors.ErrInvalidArgument)
			}
			b, err := bank.Load(bankPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "bank %s: %d items\n", bankPath, b.Len())
			summary := b.Summary()
			for _, d := range b.Domains() {
				fams := summary[d]
				names := make([]string, 0, len(fams))
				for f := range fams {
					names = append(names, f)
				}
				sort.Strings(names)
				fmt.Fprintf(out, "  %-10s %3d items\n", d, len(b.Domain(d)))
				for _, f := range names {
					fmt.Fprintf(out, "    %-28s %3d\n", f, fams[f])
				}
			}

			if formsPath == "" {
				return nil
			}
			fs, err := bank.LoadForms(formsPath)
			if err != nil {
				return err
			}
			if err := fs.Validate(b); err != nil {
				return err
			}
			fmt.Fprintf(out, "forms %s: %v\n", formsPath, fs.IDs())
			for _, id := range fs.IDs() {
				desc, _ := fs.Describe(id)
				domains := make([]string, 0, len(desc))
				for d := range desc {
					domains = append(domains, d)
				}
				sort.Strings(domains)
				for _, d := range domains {
					fmt.Fprintf(out, "  %s/%-8s %3d items, %d anchors\n", id, d, desc[d].Items, desc[d].Anchors)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bankPath, "bank", "", "Item bank file (YAML or JSON); defaults to CAT_BANK_PATH")
	cmd.Flags().StringVar(&formsPath, "forms", "", "Forms file to validate against the bank")
	return cmd
}
