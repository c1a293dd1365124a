package app

import (
	"github.com/spf13/cobra"

	"github.com/Blackdeer1524/xalog/src/app"
)

func initIndexDump() {
	var (
		dir    string
		longs  int
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "index-dump <file>",
		Short: "Prints the length and leading longs of an index file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := &app.IndexDumpEntrypoint{
				Dir:    dir,
				File:   args[0],
				Longs:  longs,
				Out:    cmd.OutOrStdout(),
				Follow: follow,
			}
			e.ConfigPath = rootCmd.Options.ConfigPath

			return app.Run(cmd.Context(), e)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Index directory, the data dir when empty")
	cmd.Flags().IntVarP(&longs, "longs", "n", 8, "Number of longs to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Print the file again whenever it changes")

	rootCmd.AddCommand(cmd)
}
