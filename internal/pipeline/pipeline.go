// Package pipeline drives a load: discover the source files of a pass, then
// parse, transform and load each one inside its own transaction.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"sparkify/internal/discovery"
	"sparkify/internal/etlerr"
	"sparkify/internal/loader"
	"sparkify/internal/logging"
	"sparkify/internal/metrics"
	parserjson "sparkify/internal/parser/json"
	"sparkify/internal/storage"
	"sparkify/internal/tracing"
	"sparkify/internal/transformer"
)

// Kind selects how a pass's files are read.
type Kind int

const (
	// Catalog files hold one song object each.
	Catalog Kind = iota
	// Activity files hold newline-delimited listening events.
	Activity
)

func (k Kind) String() string {
	switch k {
	case Catalog:
		return "catalog"
	case Activity:
		return "activity"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Pass is one sweep over an input root.
type Pass struct {
	Name string
	Root string
	Kind Kind
}

// Result summarizes a pass.
type Result struct {
	Pass      string
	Files     int
	Processed int
	Skipped   int
	Rows      loader.Counts
}

// Runner executes passes against one open store.
type Runner struct {
	Store storage.Store
	IDs   transformer.IDSource

	BadLines parserjson.BadLinePolicy

	// Optional. Nil means zap.NewNop, io.Discard, discovery.Discover and the
	// global tracer.
	Log      *zap.Logger
	Out      io.Writer
	Discover func(root string) ([]string, error)
	Tracer   trace.Tracer
}

func (r *Runner) log() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

func (r *Runner) out() io.Writer {
	if r.Out == nil {
		return io.Discard
	}
	return r.Out
}

func (r *Runner) tracer() trace.Tracer {
	if r.Tracer == nil {
		return tracing.Tracer()
	}
	return r.Tracer
}

func (r *Runner) discover(root string) ([]string, error) {
	if r.Discover == nil {
		return discovery.Discover(root)
	}
	return r.Discover(root)
}

// Run loads the song catalog, then the activity logs. It stops at the first
// failing file; the results of completed passes are returned either way.
func (r *Runner) Run(ctx context.Context, songRoot, logRoot string) ([]Result, error) {
	var results []Result
	for _, p := range []Pass{
		{Name: "song_data", Root: songRoot, Kind: Catalog},
		{Name: "log_data", Root: logRoot, Kind: Activity},
	} {
		res, err := r.RunPass(ctx, p)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// RunPass processes every file under p.Root in discovery order, printing
// progress to Out. Files committed before a failure stay committed.
func (r *Runner) RunPass(ctx context.Context, p Pass) (res Result, err error) {
	res = Result{Pass: p.Name, Rows: loader.Counts{}}
	if r.Store == nil {
		return res, errors.New("pipeline: nil store")
	}
	if p.Kind == Activity && r.IDs == nil {
		return res, errors.New("pipeline: activity pass needs an id source")
	}

	ctx, span := r.tracer().Start(ctx, "pass "+p.Name, trace.WithAttributes(
		attribute.String("sparkify.pass", p.Name),
		attribute.String("sparkify.root", p.Root),
	))
	defer func() {
		span.SetAttributes(attribute.Int("sparkify.files_processed", res.Processed))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := logging.WithContext(ctx, r.log()).With(zap.String("pass", p.Name))

	files, err := r.discover(p.Root)
	if err != nil {
		log.Error("discover", zap.String("root", p.Root), zap.Error(err))
		return res, err
	}
	res.Files = len(files)
	fmt.Fprintf(r.out(), "%d files found in %s\n", len(files), p.Root)
	log.Info("files discovered", zap.String("root", p.Root), zap.Int("files", len(files)))

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			log.Warn("canceled", zap.Int("processed", res.Processed), zap.Error(err))
			return res, err
		}

		start := time.Now()
		fr, err := r.processFile(ctx, p, path)
		status := "ok"
		if err != nil {
			status = "failed"
		}
		labels := metrics.Labels{"pass": p.Name, "status": status}
		metrics.IncCounter(metrics.FilesTotal, 1, labels)
		metrics.ObserveHistogram(metrics.FileDurationSeconds, time.Since(start).Seconds(), labels)

		if err != nil {
			log.Error("file failed; transaction rolled back",
				zap.String("path", path),
				zap.Int("file_index", i+1),
				zap.Error(err),
			)
			return res, &etlerr.FileError{Path: path, Err: err}
		}

		res.Processed++
		res.Skipped += fr.skipped
		res.Rows.Add(fr.rows)
		for table, n := range fr.rows {
			metrics.IncCounter(metrics.RowsTotal, float64(n), metrics.Labels{"table": table})
		}

		log.Debug("file loaded",
			zap.String("path", path),
			zap.Int("file_index", i+1),
			zap.Int("records", fr.records),
			zap.Int("skipped", fr.skipped),
			zap.Any("rows", fr.rows),
			zap.Duration("elapsed", time.Since(start)),
		)
		fmt.Fprintf(r.out(), "%d/%d files processed.\n", i+1, len(files))
	}

	log.Info("pass complete",
		zap.Int("files", res.Processed),
		zap.Int("skipped_records", res.Skipped),
		zap.Any("rows", res.Rows),
	)
	return res, nil
}

type fileResult struct {
	records    int
	skipped    int
	plays      int
	unresolved int
	rows       loader.Counts
}

func (r *Runner) processFile(ctx context.Context, p Pass, path string) (fr fileResult, err error) {
	ctx, span := r.tracer().Start(ctx, "file", trace.WithAttributes(
		attribute.String("sparkify.pass", p.Name),
		attribute.String("sparkify.path", path),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	err = loader.InFileTx(ctx, r.Store, func(tx storage.Tx) error {
		var (
			batch loader.Batch
			ferr  error
		)
		switch p.Kind {
		case Catalog:
			batch, fr, ferr = r.catalogBatch(path)
		case Activity:
			batch, fr, ferr = r.activityBatch(ctx, tx, p, path)
		default:
			ferr = fmt.Errorf("unknown pass kind %v", p.Kind)
		}
		if ferr != nil {
			return ferr
		}

		fr.rows, ferr = loader.Apply(ctx, tx, batch)
		return ferr
	})
	if err != nil {
		return fileResult{}, err
	}

	metrics.IncCounter(metrics.RecordsTotal, float64(fr.records), metrics.Labels{"pass": p.Name, "kind": "parsed"})
	metrics.IncCounter(metrics.RecordsTotal, float64(fr.skipped), metrics.Labels{"pass": p.Name, "kind": "skipped"})
	if p.Kind == Activity {
		metrics.IncCounter(metrics.RecordsTotal, float64(fr.plays), metrics.Labels{"pass": p.Name, "kind": "plays"})
		metrics.IncCounter(metrics.RecordsTotal, float64(fr.unresolved), metrics.Labels{"pass": p.Name, "kind": "unresolved"})
	}
	return fr, nil
}

func (r *Runner) catalogBatch(path string) (loader.Batch, fileResult, error) {
	rec, err := parserjson.ReadSongFile(path)
	if err != nil {
		return loader.Batch{}, fileResult{}, err
	}
	song, artist := transformer.SongRows(rec)
	return loader.Batch{
		Artists: []storage.ArtistRow{artist},
		Songs:   []storage.SongRow{song},
	}, fileResult{records: 1}, nil
}

func (r *Runner) activityBatch(ctx context.Context, tx storage.Tx, p Pass, path string) (loader.Batch, fileResult, error) {
	recs, skipped, err := parserjson.ReadEventFile(ctx, path, r.BadLines)
	if err != nil {
		return loader.Batch{}, fileResult{}, err
	}
	for _, s := range skipped {
		r.log().Warn("skipped record", zap.String("pass", p.Name), zap.String("path", path), zap.Error(s))
	}

	eb, err := transformer.EventRows(ctx, recs, transformer.ExactMatch{Lookup: tx.LookupSong}, r.IDs)
	if err != nil {
		return loader.Batch{}, fileResult{}, err
	}

	unresolved := 0
	for _, sp := range eb.Songplays {
		if sp.SongID == nil {
			unresolved++
		}
	}

	return loader.Batch{
		Times:     eb.Times,
		Users:     eb.Users,
		Songplays: eb.Songplays,
	}, fileResult{records: len(recs), skipped: len(skipped), plays: len(eb.Songplays), unresolved: unresolved}, nil
}
