package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"image-worker-service/internal/bootstrap"
	"image-worker-service/internal/entity"
	"image-worker-service/internal/progress"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		kind          string
		scale         int
		enhanceBefore bool
		output        string
	)

	cmd := &cobra.Command{
		Use:   "run <input>",
		Short: "Run one task in-process, without the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			job := entity.Job{
				ID:        uuid.New(),
				Kind:      entity.Kind(strings.TrimSpace(kind)),
				InputPath: args[0],
				Params:    entity.Params{Scale: scale, EnhanceBefore: enhanceBefore},
			}
			job.OutputPath = output
			if job.OutputPath == "" {
				job.OutputPath = defaultOutput(args[0], job.EffectiveKind())
			}

			runner, cache, err := bootstrap.Runner(cfg, ctx.log())
			if err != nil {
				return err
			}
			defer cache.Close()

			out := cmd.OutOrStdout()
			sink := progress.NewMonotonic(progress.SinkFunc(func(_ context.Context, p int) {
				fmt.Fprintf(cmd.ErrOrStderr(), "progress %3d%%\n", p)
			}), 0)

			start := time.Now()
			res, err := runner.Run(cmd.Context(), job, sink)
			if err != nil {
				return fmt.Errorf("%s: %s", entity.StatusFailure, entity.FailureMessage(err))
			}

			fmt.Fprintln(out, renderTable(
				[]string{"Field", "Value"},
				[][]string{
					{"Status", string(res.Status)},
					{"Type", string(job.EffectiveKind())},
					{"Scale", strconv.Itoa(job.Params.Scale)},
					{"Output", res.OutputPath},
					{"Duration", time.Since(start).Round(time.Millisecond).String()},
				},
				nil,
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "type", "t", string(entity.KindRemoveBackground), "remove_background, enhance, vectorize or vectorize_enhance")
	cmd.Flags().IntVarP(&scale, "scale", "s", entity.DefaultScale, "Upscale factor: 2, 4 or 8")
	cmd.Flags().BoolVar(&enhanceBefore, "enhance-before", false, "Vectorize: enhance the input first")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default: next to the input)")
	return cmd
}

// defaultOutput puts photo.jpg through enhance at photo.enhance.png.
func defaultOutput(input string, kind entity.Kind) string {
	stem := strings.TrimSuffix(input, filepath.Ext(input))
	return stem + "." + string(kind) + kind.OutputExt()
}
