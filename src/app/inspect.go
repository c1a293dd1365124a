package app

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/Blackdeer1524/xalog/src/recovery"
)

// InspectEntrypoint prints every entry of a logical log without touching it.
type InspectEntrypoint struct {
	base

	LogPath string
	Out     io.Writer
	Fs      afero.Fs
}

func (e *InspectEntrypoint) Init(_ context.Context) error {
	if err := e.init(); err != nil {
		return err
	}

	if e.Fs == nil {
		e.Fs = afero.NewOsFs()
	}
	if e.LogPath == "" {
		e.LogPath = e.cfg.LogPath()
	}

	return nil
}

func (e *InspectEntrypoint) Run(_ context.Context) error {
	summary, err := recovery.Dump(e.Fs, e.LogPath, recovery.BytesCodec{}, func(entry recovery.Entry) error {
		_, err := fmt.Fprintln(e.Out, entry.String())
		return err
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(
		e.Out,
		"created %s, %d entries, %d bytes, truncated tail: %t\n",
		summary.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		summary.Entries,
		summary.End,
		summary.Truncated,
	)

	return err
}

func (e *InspectEntrypoint) Close() error {
	return e.syncLog(nil)
}
