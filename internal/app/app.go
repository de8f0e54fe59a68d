// Package app wires the storage engine, the catalog and the archiver into the
// tusstore admin tool and dispatches its commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/tusstore/internal/archive"
	"github.com/dmitrijs2005/tusstore/internal/catalog"
	"github.com/dmitrijs2005/tusstore/internal/config"
	"github.com/dmitrijs2005/tusstore/internal/flagx"
	"github.com/dmitrijs2005/tusstore/internal/idfactory"
	"github.com/dmitrijs2005/tusstore/internal/locking"
	"github.com/dmitrijs2005/tusstore/internal/logging"
	"github.com/dmitrijs2005/tusstore/internal/storage/disk"
	"github.com/dmitrijs2005/tusstore/internal/upload"
)

// ErrUsage is returned for unknown commands and missing or malformed flags.
var ErrUsage = errors.New("usage error")

type archiver interface {
	Archive(ctx context.Context, uri, ownerKey string) (string, error)
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	ids      *idfactory.UUIDFactory
	disk     *disk.Service
	catalog  *catalog.Catalog
	storage  upload.StorageService
	locks    *locking.Memory
	archiver archiver
}

// NewApp builds the application from c. Log lines go to errOut, command
// output to out; in feeds append when no file is given.
func NewApp(ctx context.Context, c *config.Config, in io.Reader, out, errOut io.Writer) (*App, error) {
	logger := logging.NewJSON(errOut, c.LogLevel)

	ids, err := idfactory.New(c.UploadURI)
	if err != nil {
		return nil, fmt.Errorf("id factory init error: %w", err)
	}

	ds, err := disk.NewService(c.StoragePath, ids,
		disk.WithMaxUploadSize(c.MaxUploadSize),
		disk.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	cat, err := catalog.Open(ctx, c.CatalogDriver, c.CatalogDSN)
	if err != nil {
		return nil, fmt.Errorf("catalog init error: %w", err)
	}

	tracked := catalog.NewTrackingStorage(ds, cat.Uploads(), logger)

	arc := archive.NewArchiver(tracked, archive.Options{
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
	}, logger)

	return &App{
		config:   c,
		logger:   logger,
		in:       in,
		out:      out,
		errOut:   errOut,
		ids:      ids,
		disk:     ds,
		catalog:  cat,
		storage:  tracked,
		locks:    locking.NewMemory(ids),
		archiver: arc,
	}, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// Run executes the command found in args. Global flags before the command are
// ignored here; they are consumed by config.LoadConfig.
func (app *App) Run(ctx context.Context, args []string) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	app.initSignalHandler(ctx, cancelFunc)

	_, name, tail := flagx.SplitCommand(args, CommandNames())
	cmd, ok := lookup(name)
	if !ok {
		app.usage()
		return fmt.Errorf("no command given: %w", ErrUsage)
	}

	app.logger.Debug(ctx, "running command", "command", name)
	if err := cmd.run(app, ctx, tail); err != nil {
		app.logger.Error(ctx, "command failed", "command", name, "error", err)
		return err
	}
	return nil
}

func (app *App) Close() error {
	return app.catalog.Close()
}

func (app *App) usage() {
	fmt.Fprintln(app.errOut, "usage: tusstore [global flags] <command> [command flags]")
	fmt.Fprintln(app.errOut, "commands:")
	for _, c := range commands {
		fmt.Fprintf(app.errOut, "  %-10s %s\n", c.name, c.help)
	}
}
