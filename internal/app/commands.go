package app

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/tusstore/internal/upload"
)

type command struct {
	name string
	help string
	run  func(*App, context.Context, []string) error
}

var commands = []command{
	{"create", "create a new upload", (*App).create},
	{"info", "print the record of an upload", (*App).info},
	{"append", "append a file or stdin to an upload", (*App).append},
	{"truncate", "drop the last bytes of an upload", (*App).truncate},
	{"terminate", "delete an upload", (*App).terminate},
	{"cat", "write the stored bytes of an upload", (*App).cat},
	{"list", "list catalogued uploads of an owner", (*App).list},
	{"reindex", "rebuild the catalog from disk", (*App).reindex},
	{"archive", "copy an upload to object storage", (*App).archive},
	{"cleanup", "remove expired uploads", (*App).cleanup},
}

// CommandNames lists the commands Run understands.
func CommandNames() []string {
	names := make([]string, 0, len(commands))
	for _, c := range commands {
		names = append(names, c.name)
	}
	return names
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// uploadView is the JSON shape printed for an upload.
type uploadView struct {
	URI string `json:"uri"`
	*upload.Info
}

type catalogView struct {
	URI       string    `json:"uri"`
	ID        string    `json:"id"`
	Offset    int64     `json:"offset"`
	Length    *int64    `json:"length,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (app *App) print(v any) error {
	enc := json.NewEncoder(app.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (app *App) printUpload(info *upload.Info) error {
	return app.print(uploadView{URI: app.ids.URIFor(info.ID), Info: info})
}

func (app *App) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(app.errOut)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%s: %w: %w", fs.Name(), ErrUsage, err)
	}
	return nil
}

// target holds the flags shared by every command addressing one upload.
type target struct {
	uri   string
	owner string
}

func (t *target) bind(fs *flag.FlagSet) {
	fs.StringVar(&t.uri, "uri", "", "upload URI or id")
	fs.StringVar(&t.owner, "owner", "", "owner key")
}

// resolve validates the flags and turns a bare id into a URI.
func (app *App) resolve(fs *flag.FlagSet, t *target) error {
	if t.uri == "" {
		return fmt.Errorf("%s: -uri is required: %w", fs.Name(), ErrUsage)
	}
	if !strings.Contains(t.uri, "/") {
		t.uri = app.ids.URIFor(t.uri)
	}
	return nil
}

// withLock runs fn while holding the upload lock of uri. Waiting for the lock
// is bounded by the configured lock timeout.
//
// locking.Memory is per process, so two tusstore invocations never contend
// here; concurrent callers only meet when App is embedded and Run is called
// from several goroutines. Between processes the data file lock of the disk
// engine is what serialises writers.
func (app *App) withLock(ctx context.Context, uri string, fn func() error) error {
	lockCtx := ctx
	if app.config.LockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, app.config.LockTimeout)
		defer cancel()
	}

	lock, err := app.locks.LockUploadByURI(lockCtx, uri)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			app.logger.Warn(ctx, "failed to release upload lock", "uri", uri, "error", err)
		}
	}()

	return fn()
}

func (app *App) create(ctx context.Context, args []string) error {
	fs := app.newFlagSet("create")
	owner := fs.String("owner", "", "owner key")
	length := fs.Int64("length", -1, "total length in bytes, -1 when deferred")
	checksum := fs.String("checksum", "", "final checksum announced by the client")
	uploadType := fs.String("type", upload.TypeRegular, "upload type (regular|partial|concatenated)")
	meta := map[string]string{}
	fs.Func("meta", "metadata entry key=value, repeatable", func(s string) error {
		k, v, ok := strings.Cut(s, "=")
		if !ok || k == "" {
			return fmt.Errorf("metadata %q is not key=value", s)
		}
		meta[k] = v
		return nil
	})
	if err := parse(fs, args); err != nil {
		return err
	}

	info := &upload.Info{Checksum: *checksum, UploadType: *uploadType}
	if *length >= 0 {
		info.Length = upload.Int64(*length)
	}
	if len(meta) > 0 {
		info.Metadata = meta
	}

	info, err := app.storage.Create(ctx, info, *owner)
	if err != nil {
		return err
	}
	return app.printUpload(info)
}

func (app *App) info(ctx context.Context, args []string) error {
	fs := app.newFlagSet("info")
	var t target
	t.bind(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := app.resolve(fs, &t); err != nil {
		return err
	}

	info, err := app.storage.GetUploadInfo(ctx, t.uri, t.owner)
	if err != nil {
		return err
	}
	return app.printUpload(info)
}

func (app *App) append(ctx context.Context, args []string) error {
	fs := app.newFlagSet("append")
	var t target
	t.bind(fs)
	file := fs.String("file", "", "file to append, stdin when empty")
	offset := fs.Int64("offset", -1, "offset the bytes belong at, the stored offset when negative")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := app.resolve(fs, &t); err != nil {
		return err
	}

	src := app.in
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return fmt.Errorf("open %s: %w", *file, err)
		}
		defer f.Close()
		src = f
	}

	return app.withLock(ctx, t.uri, func() error {
		info, err := app.storage.GetUploadInfo(ctx, t.uri, t.owner)
		if err != nil {
			return err
		}
		if *offset >= 0 {
			info.Offset = *offset
		}

		info, err = app.storage.Append(ctx, info, src)
		if err != nil {
			return fmt.Errorf("append to %s, stored offset %d: %w", t.uri, info.Offset, err)
		}
		return app.printUpload(info)
	})
}

func (app *App) truncate(ctx context.Context, args []string) error {
	fs := app.newFlagSet("truncate")
	var t target
	t.bind(fs)
	n := fs.Int64("bytes", 0, "number of trailing bytes to drop")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := app.resolve(fs, &t); err != nil {
		return err
	}

	return app.withLock(ctx, t.uri, func() error {
		info, err := app.storage.GetUploadInfo(ctx, t.uri, t.owner)
		if err != nil {
			return err
		}
		if err := app.storage.RemoveLastBytes(ctx, info, *n); err != nil {
			return err
		}
		return app.printUpload(info)
	})
}

func (app *App) terminate(ctx context.Context, args []string) error {
	fs := app.newFlagSet("terminate")
	var t target
	t.bind(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := app.resolve(fs, &t); err != nil {
		return err
	}

	return app.withLock(ctx, t.uri, func() error {
		info, err := app.storage.GetUploadInfo(ctx, t.uri, t.owner)
		if err != nil {
			return err
		}
		if err := app.storage.Terminate(ctx, info); err != nil {
			return err
		}
		return app.print(map[string]any{"uri": t.uri, "terminated": true})
	})
}

func (app *App) cat(ctx context.Context, args []string) error {
	fs := app.newFlagSet("cat")
	var t target
	t.bind(fs)
	out := fs.String("out", "", "destination file, stdout when empty")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := app.resolve(fs, &t); err != nil {
		return err
	}

	// GetUploadedBytes does not check the owner
	if _, err := app.storage.GetUploadInfo(ctx, t.uri, t.owner); err != nil {
		return err
	}
	r, err := app.storage.GetUploadedBytes(ctx, t.uri, t.owner)
	if err != nil {
		return err
	}
	defer r.Close()

	var w io.Writer = app.out
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create %s: %w", *out, err)
		}
		defer f.Close()
		w = f
	}

	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copy upload bytes: %w", err)
	}
	return nil
}

func (app *App) list(ctx context.Context, args []string) error {
	fs := app.newFlagSet("list")
	owner := fs.String("owner", "", "owner key")
	if err := parse(fs, args); err != nil {
		return err
	}

	records, err := app.catalog.Uploads().ListByOwner(ctx, *owner)
	if err != nil {
		return err
	}

	views := make([]catalogView, 0, len(records))
	for _, r := range records {
		views = append(views, catalogView{
			URI:       app.ids.URIFor(r.ID),
			ID:        r.ID,
			Offset:    r.Offset,
			Length:    r.Length,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return app.print(views)
}

func (app *App) reindex(ctx context.Context, args []string) error {
	fs := app.newFlagSet("reindex")
	if err := parse(fs, args); err != nil {
		return err
	}

	infos, err := app.disk.List(ctx)
	if err != nil {
		return err
	}
	if err := app.catalog.Reindex(ctx, infos); err != nil {
		return fmt.Errorf("reindex catalog: %w", err)
	}

	app.logger.Info(ctx, "catalog rebuilt", "uploads", len(infos))
	return app.print(map[string]int{"indexed": len(infos)})
}

func (app *App) archive(ctx context.Context, args []string) error {
	fs := app.newFlagSet("archive")
	var t target
	t.bind(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := app.resolve(fs, &t); err != nil {
		return err
	}

	return app.withLock(ctx, t.uri, func() error {
		key, err := app.archiver.Archive(ctx, t.uri, t.owner)
		if err != nil {
			return err
		}
		return app.print(map[string]string{"uri": t.uri, "bucket": app.config.S3Bucket, "key": key})
	})
}

func (app *App) cleanup(ctx context.Context, args []string) error {
	fs := app.newFlagSet("cleanup")
	if err := parse(fs, args); err != nil {
		return err
	}
	return app.storage.CleanupExpiredUploads(ctx, app.locks)
}
