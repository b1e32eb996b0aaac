package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"image-worker-service/internal/model"
)

func newProfilesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List vectorization presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows [][]string
			for _, p := range model.Profiles() {
				rows = append(rows, []string{
					p.Name,
					string(p.Mode),
					strconv.Itoa(p.FilterSpeckle),
					strconv.Itoa(p.ColorPrecision),
					strconv.FormatFloat(p.LengthThreshold, 'f', -1, 64),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Profile", "Mode", "Speckle", "Precision", "Length"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}
