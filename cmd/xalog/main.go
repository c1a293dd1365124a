package main

import (
	"context"

	"github.com/Blackdeer1524/xalog/cmd/xalog/app"
)

func main() {
	app.MustExecute(context.Background())
}
