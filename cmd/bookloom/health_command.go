package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bookloom/internal/daemonrun"
	"bookloom/internal/preflight"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var checkProvider bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check directories, stores, and provider readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderSectionHeader("bookloom health", colorize))

			var results []preflight.Result
			err = ctx.withStores(cmd.Context(), func(stores *daemonrun.Stores) error {
				results = daemonrun.Preflight(cmd.Context(), cfg, stores, checkProvider)
				return nil
			})
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("Stores", statusError, err.Error(), colorize))
				return fmt.Errorf("one or more checks failed")
			}

			for _, r := range results {
				kind := statusOK
				switch {
				case !r.Passed && r.Optional:
					kind = statusWarn
				case !r.Passed:
					kind = statusError
				case r.Optional:
					kind = statusInfo
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			if len(preflight.Failed(results)) > 0 {
				return fmt.Errorf("one or more checks failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkProvider, "provider", false, "Also contact the generation provider")
	return cmd
}
