package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"image-worker-service/internal/bootstrap"
	"image-worker-service/internal/entity"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task_id>",
		Short: "Show a task record from the result backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			rdb, err := bootstrap.Redis(cmd.Context(), cfg.Redis)
			if err != nil {
				return err
			}
			defer rdb.Close()

			store, _, closeStore, err := bootstrap.OpenStore(cmd.Context(), cfg, rdb)
			if err != nil {
				return err
			}
			defer closeStore()

			task, err := store.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, taskRows(task), nil))
			return nil
		},
	}
}

func taskRows(t *entity.Task) [][]string {
	rows := [][]string{
		{"ID", t.ID.String()},
		{"Type", string(t.EffectiveKind())},
		{"Status", string(t.Status)},
		{"Progress", strconv.Itoa(t.Progress) + "%"},
		{"Priority", strconv.Itoa(t.Priority)},
		{"Input", t.InputPath},
		{"Output", t.OutputPath},
	}
	if t.Params.Scale != 0 {
		rows = append(rows, []string{"Scale", strconv.Itoa(t.Params.Scale)})
	}
	if t.Result != nil {
		rows = append(rows, []string{"Filename", t.Result.Filename})
	}
	if t.Error != nil {
		rows = append(rows, []string{"Error", *t.Error})
	}
	if !t.CreatedAt.IsZero() {
		rows = append(rows,
			[]string{"Created", t.CreatedAt.Local().Format(time.DateTime)},
			[]string{"Updated", t.UpdatedAt.Local().Format(time.DateTime)},
		)
	}
	return rows
}
