package app

import (
	"github.com/spf13/cobra"

	"github.com/Blackdeer1524/xalog/src/app"
)

func initInspect() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "inspect [log]",
		Short: "Prints every entry of a logical log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := &app.InspectEntrypoint{Out: cmd.OutOrStdout()}
			e.ConfigPath = rootCmd.Options.ConfigPath
			if len(args) == 1 {
				e.LogPath = args[0]
			}

			return app.Run(cmd.Context(), e)
		},
	})
}
