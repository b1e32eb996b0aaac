package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"image-worker-service/internal/model/backends"
	"image-worker-service/internal/model/external"
)

func newPreloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preload",
		Short: "Load every model once and report the backend it bound to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cache := backends.NewCache(cfg.Models, external.ExecRunner, ctx.log())
			defer cache.Close()

			var (
				rows [][]string
				errs []error
			)
			for _, name := range cache.Names() {
				h, err := cache.Acquire(cmd.Context(), name)
				if err != nil {
					rows = append(rows, []string{string(name), "-", "-", "failed"})
					errs = append(errs, err)
					continue
				}
				rows = append(rows, []string{
					string(h.Name),
					string(h.Backend),
					h.Version,
					h.LoadDuration.Round(time.Millisecond).String(),
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Resource", "Backend", "Version", "Load"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
			))
			return errors.Join(errs...)
		},
	}
}
