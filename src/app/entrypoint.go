package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Blackdeer1524/xalog/src"
	"github.com/Blackdeer1524/xalog/src/cfg"
	"github.com/Blackdeer1524/xalog/src/pkg/utils"
)

type Entrypoint interface {
	Init(ctx context.Context) error
	Run(ctx context.Context) error
	Close() error
}

// Run initializes e, runs it until it returns or a signal arrives and closes
// it either way.
func Run(ctx context.Context, e Entrypoint) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := e.Init(ctx); err != nil {
		return errors.Wrap(err, "entrypoint init")
	}

	eg, ctx := errgroup.WithContext(ctx)
	finished := make(chan struct{})

	eg.Go(func() error {
		defer close(finished)
		return e.Run(ctx)
	})

	eg.Go(func() error {
		select {
		case <-ctx.Done():
		case <-finished:
		}

		return e.Close()
	})

	return eg.Wait()
}

func newLogger(env cfg.Environment) src.Logger {
	if env == cfg.EnvDev {
		return utils.Must(zap.NewDevelopment()).Sugar()
	}
	return utils.Must(zap.NewProduction()).Sugar()
}

// base carries what every entrypoint loads first.
type base struct {
	ConfigPath string

	cfg cfg.Config
	log src.Logger
}

func (b *base) init() error {
	config, err := cfg.Load(b.ConfigPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	b.cfg = config
	b.log = newLogger(config.Environment)

	return nil
}

func (b *base) syncLog(err error) error {
	if b.log == nil {
		return err
	}
	if err != nil {
		b.log.Errorw("entrypoint failed", "error", err)
	}

	// stderr can't be synced on some platforms
	_ = b.log.Sync()

	return err
}
