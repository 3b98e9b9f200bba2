package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/palantir/contact-enrichment/internal/app"
)

func newDescribeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "describe",
		Short: "List the enabled resolvers in scheduling order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := app.Build(cmd.Context(), cfg, zap.NewNop())
			if err != nil {
				return err
			}
			defer func() {
				_ = rt.Close()
			}()

			infos := app.Describe(rt.Resolvers, cfg.Exclusivity)
			if asJSON {
				b, err := json.MarshalIndent(infos, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal resolvers: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "PRIORITY\tNAME\tDEPENDS ON\tPROVIDES\tBLOCKS")
			for _, r := range infos {
				_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
					r.Priority, r.Name, r.DependsOn, strings.Join(r.Provides, ","), strings.Join(r.Blocks, ","))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	addOverrideFlags(cmd)
	return cmd
}
