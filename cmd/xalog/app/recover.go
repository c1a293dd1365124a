package app

import (
	"github.com/spf13/cobra"

	"github.com/Blackdeer1524/xalog/src/app"
)

func initRecover() {
	var decision string

	cmd := &cobra.Command{
		Use:   "recover [log]",
		Short: "Recovers a logical log and decides its prepared transactions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := &app.RecoverEntrypoint{
				Decision: app.Decision(decision),
				Out:      cmd.OutOrStdout(),
			}
			e.ConfigPath = rootCmd.Options.ConfigPath
			if len(args) == 1 {
				e.LogPath = args[0]
			}

			return app.Run(cmd.Context(), e)
		},
	}
	cmd.Flags().StringVar(
		&decision,
		"decision",
		string(app.DecisionList),
		"What to do with prepared transactions: list, commit or rollback",
	)

	rootCmd.AddCommand(cmd)
}
