package main

import (
	"github.com/spf13/cobra"

	"github.com/Ning0612/foldersync/internal/service"
	"github.com/Ning0612/foldersync/internal/state"
)

func (a *app) historyCmd() *cobra.Command {
	var (
		limit  int
		target string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, shutdown, err := a.setup(cmd)
			if err != nil {
				return err
			}
			defer shutdown()

			svc, err := service.NewSyncService(*opts)
			if err != nil {
				return err
			}
			defer svc.Close()

			records, err := svc.History(limit, target)
			if err != nil {
				return err
			}

			var last *state.ExecutionRecord
			if target != "" {
				if last, err = svc.LastSuccess(target); err != nil {
					return err
				}
			}
			return a.renderHistory(records, last)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().StringVar(&target, "target", "", "only list runs for this target directory")
	return cmd
}
