// Package ingest reconciles the note sources of courses with the card store.
//
// A source is a local directory or a git repository of markdown notes. Sync
// pulls the repository when needed, parses every .md file and creates the
// cards that are not in the store yet. Cards are never deleted by a sync.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/studymate/internal/domain"
	"github.com/conorfennell/studymate/internal/gitsource"
	"github.com/conorfennell/studymate/internal/parser"
)

// Store is the part of the card store the importer uses.
type Store interface {
	CreateCard(ctx context.Context, courseID string, content domain.Content, now time.Time) (domain.Card, error)
	ListSources(ctx context.Context, courseID string) ([]domain.Source, error)
	MarkSourceScanned(ctx context.Context, id int64, at time.Time) error
}

// Report summarizes the reconciliation of one source.
type Report struct {
	Files   int
	Cards   int
	Created int
	Skipped int
	Errors  []error // notes or files that could not be read
}

// Importer creates cards from notes.
type Importer struct {
	store    Store
	reposDir string
	workers  int
	progress io.Writer
	clock    func() time.Time
	logger   *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithWorkers bounds how many files are parsed at once.
func WithWorkers(n int) Option {
	return func(im *Importer) { im.workers = n }
}

// WithGitProgress sends the progress output of clones and pulls to w.
func WithGitProgress(w io.Writer) Option {
	return func(im *Importer) { im.progress = w }
}

func WithLogger(l *slog.Logger) Option {
	return func(im *Importer) { im.logger = l }
}

// NewImporter returns an importer writing to store. Git sources are checked
// out under reposDir.
func NewImporter(store Store, reposDir string, opts ...Option) *Importer {
	im := &Importer{
		store:    store,
		reposDir: reposDir,
		workers:  4,
		clock:    time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(im)
	}
	if im.workers < 1 {
		im.workers = 1
	}
	return im
}

// Import creates a card for each content. Content already present in the
// course is counted as skipped.
func (im *Importer) Import(ctx context.Context, courseID string, contents []domain.Content) (created, skipped int, err error) {
	now := im.clock()
	for _, c := range contents {
		card, err := im.store.CreateCard(ctx, courseID, c, now)
		switch {
		case errors.Is(err, domain.ErrAlreadyExists):
			skipped++
		case err != nil:
			return created, skipped, fmt.Errorf("failed to create card: %w", err)
		default:
			created++
			im.logger.Debug("New card found, inserting", "course", courseID, "id", card.ID)
		}
	}
	return created, skipped, nil
}

// SyncAll reconciles every registered source. A failing source is logged and
// does not stop the others; the failures are returned joined.
func (im *Importer) SyncAll(ctx context.Context) error {
	im.logger.Info("Starting sync process for all sources")
	sources, err := im.store.ListSources(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to get sources: %w", err)
	}
	if len(sources) == 0 {
		im.logger.Info("No sources configured. Add one with --add-source <path/or/url.git>")
		return nil
	}

	var errs []error
	for _, src := range sources {
		if _, err := im.Sync(ctx, src); err != nil {
			if ctx.Err() != nil {
				return err
			}
			im.logger.Error("Failed to sync source", "id", src.ID, "path", src.Path, "error", err)
			errs = append(errs, err)
		}
	}
	im.logger.Info("Sync process complete", "sources", len(sources), "failed", len(errs))
	return errors.Join(errs...)
}

// Sync reconciles one source and marks it scanned.
func (im *Importer) Sync(ctx context.Context, src domain.Source) (Report, error) {
	im.logger.Info("Syncing source", "id", src.ID, "type", src.Type, "path", src.Path)

	dir := src.Path
	switch src.Type {
	case domain.LocalSource:
	case domain.GitSource:
		localPath, err := gitsource.LocalPath(im.reposDir, src.Path)
		if err != nil {
			return Report{}, fmt.Errorf("failed to determine local path for git repo %s: %w", src.Path, err)
		}
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return Report{}, fmt.Errorf("failed to create repos directory: %w", err)
		}
		if err := gitsource.Sync(ctx, src.Path, localPath, im.progress, im.logger); err != nil {
			return Report{}, err
		}
		dir = localPath
	default:
		return Report{}, fmt.Errorf("source %d: unknown type %q", src.ID, src.Type)
	}

	report, err := im.reconcileDir(ctx, src.CourseID, dir)
	if err != nil {
		return report, err
	}

	if err := im.store.MarkSourceScanned(ctx, src.ID, im.clock()); err != nil {
		im.logger.Warn("Failed to update last scanned for source", "source_id", src.ID, "error", err)
	}

	im.logger.Info("Reconciliation complete",
		"path", dir,
		"files", report.Files,
		"parsed_cards", report.Cards,
		"created", report.Created,
		"skipped", report.Skipped,
		"errors", len(report.Errors),
	)
	return report, nil
}

func (im *Importer) reconcileDir(ctx context.Context, courseID, dir string) (Report, error) {
	var files []string
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			files = append(files, path)
		}
		return nil
	})
	if walkErr != nil {
		return Report{}, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}

	// Each file gets its own slot so results keep walk order.
	type parsed struct {
		contents []domain.Content
		errs     []error
	}
	results := make([]parsed, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			notes, err := parser.ParseFile(path)
			if err != nil {
				results[i].errs = []error{fmt.Errorf("parsing %s: %w", path, err)}
				return nil
			}
			contents, errs := parser.Contents(notes)
			for j, e := range errs {
				errs[j] = fmt.Errorf("%s: %w", path, e)
			}
			results[i] = parsed{contents: contents, errs: errs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{Files: len(files)}
	var contents []domain.Content
	for _, r := range results {
		contents = append(contents, r.contents...)
		report.Errors = append(report.Errors, r.errs...)
	}
	for _, err := range report.Errors {
		im.logger.Warn("Skipping note", "error", err)
	}
	report.Cards = len(contents)

	created, skipped, err := im.Import(ctx, courseID, contents)
	report.Created, report.Skipped = created, skipped
	if err != nil {
		return report, err
	}
	return report, nil
}
