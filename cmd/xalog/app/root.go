package app

import (
	"context"

	"github.com/Blackdeer1524/xalog/src/cli"
)

var rootCmd = cli.Init("xalog")

func MustExecute(ctx context.Context) {
	initInspect()
	initRecover()
	initIndexDump()
	rootCmd.MustExecute(ctx)
}
