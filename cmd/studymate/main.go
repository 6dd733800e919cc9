package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/studymate/internal/config"
	"github.com/conorfennell/studymate/internal/domain"
	"github.com/conorfennell/studymate/internal/generation"
	"github.com/conorfennell/studymate/internal/gitsource"
	"github.com/conorfennell/studymate/internal/ingest"
	"github.com/conorfennell/studymate/internal/queue"
	"github.com/conorfennell/studymate/internal/session"
	"github.com/conorfennell/studymate/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("studymate failed", "error", err)
		stop()
		os.Exit(1)
	}
}

type options struct {
	user         string
	course       string
	createCourse string
	addSource    string
	sync         bool
	upload       string
	due          bool
	review       bool
	deleteCourse string
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	fs := pflag.NewFlagSet("studymate", pflag.ContinueOnError)
	config.RegisterFlags(fs)

	var opts options
	fs.StringVar(&opts.user, "user", defaultUser(), "User owning the courses")
	fs.StringVar(&opts.course, "course", "", "Course ID to work on")
	fs.StringVar(&opts.createCourse, "create-course", "", "Create a course with the given title and print its ID")
	fs.StringVar(&opts.addSource, "add-source", "", "Add a local directory or git URL as a notes source of --course")
	fs.BoolVar(&opts.sync, "sync", false, "Sync all notes sources")
	fs.StringVar(&opts.upload, "upload", "", "Generate cards for --course from a notes file")
	fs.BoolVar(&opts.due, "due", false, "List the cards of --course that are due")
	fs.BoolVar(&opts.review, "review", false, "Review the due cards of --course")
	fs.StringVar(&opts.deleteCourse, "delete-course", "", "Delete a course with all its cards")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	db, err := storage.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Debug("Database opened successfully", "path", cfg.DB)

	importer := ingest.NewImporter(db, cfg.ReposDir,
		ingest.WithWorkers(cfg.Ingest.Workers),
		ingest.WithLogger(logger),
	)
	app := &app{
		cfg:      cfg,
		store:    db,
		importer: importer,
		logger:   logger,
		in:       in,
		out:      out,
		opts:     opts,
	}

	switch {
	case opts.createCourse != "":
		return app.createCourse(ctx)
	case opts.deleteCourse != "":
		return app.deleteCourse(ctx)
	case opts.addSource != "":
		return app.addSource(ctx)
	case opts.sync:
		return app.importer.SyncAll(ctx)
	case opts.upload != "":
		return app.uploadNotes(ctx)
	case opts.due:
		return app.listDue(ctx)
	case opts.review:
		return app.reviewCourse(ctx)
	}
	fs.Usage()
	return nil
}

type app struct {
	cfg      config.Config
	store    storage.Store
	importer *ingest.Importer
	logger   *slog.Logger
	in       io.Reader
	out      io.Writer
	opts     options
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

func (a *app) scope() (domain.Scope, error) {
	if a.opts.course == "" {
		return domain.Scope{}, errors.New("--course is required")
	}
	return domain.Scope{UserID: a.opts.user, CourseID: a.opts.course}, nil
}

// course returns the course of scope if the user owns it.
func (a *app) course(ctx context.Context, scope domain.Scope) (domain.Course, error) {
	c, err := a.store.GetCourse(ctx, scope.CourseID)
	if err != nil {
		return domain.Course{}, err
	}
	if c.UserID != scope.UserID {
		return domain.Course{}, fmt.Errorf("course %s: %w", c.ID, domain.ErrScopeNotFound)
	}
	return c, nil
}

func (a *app) createCourse(ctx context.Context) error {
	c, err := a.store.CreateCourse(ctx, domain.Course{UserID: a.opts.user, Title: a.opts.createCourse})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, c.ID)
	return nil
}

func (a *app) deleteCourse(ctx context.Context) error {
	c, err := a.course(ctx, domain.Scope{UserID: a.opts.user, CourseID: a.opts.deleteCourse})
	if err != nil {
		return err
	}
	if err := a.store.DeleteCourse(ctx, c.ID); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted course %q.\n", c.Title)
	return nil
}

func (a *app) addSource(ctx context.Context) error {
	scope, err := a.scope()
	if err != nil {
		return err
	}
	src := domain.Source{CourseID: scope.CourseID, Path: a.opts.addSource, Type: domain.LocalSource}
	if gitsource.IsRemote(src.Path) {
		src.Type = domain.GitSource
	} else {
		abs, err := filepath.Abs(src.Path)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", src.Path, err)
		}
		if fi, err := os.Stat(abs); err != nil || !fi.IsDir() {
			return fmt.Errorf("source %s is not a directory", src.Path)
		}
		src.Path = abs
	}
	if _, err := a.course(ctx, scope); err != nil {
		return err
	}
	src, err = a.store.AddSource(ctx, src)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added %s source %s. Run --sync to import it.\n", src.Type, src.Path)
	return nil
}

func (a *app) uploadNotes(ctx context.Context) error {
	scope, err := a.scope()
	if err != nil {
		return err
	}
	if _, err := a.course(ctx, scope); err != nil {
		return err
	}
	notes, err := os.ReadFile(a.opts.upload)
	if err != nil {
		return fmt.Errorf("failed to read notes: %w", err)
	}

	runner := generation.NewRunner(generation.NewMarkdownGenerator(a.logger), a.importer, a.cfg.Generation.Timeout, a.logger)
	task := runner.Submit(ctx, generation.Request{
		CourseID: scope.CourseID,
		Name:     filepath.Base(a.opts.upload),
		Notes:    notes,
	})
	fmt.Fprintf(a.out, "Generating cards (task %s)...\n", task.ID())

	res, err := task.Wait(ctx)
	if err != nil {
		task.Cancel()
		runner.Wait()
		return fmt.Errorf("task %s %s: %w", task.ID(), task.Status(), err)
	}
	fmt.Fprintf(a.out, "Created %d cards, %d already present.\n", res.Created, res.Skipped)
	return nil
}

func (a *app) listDue(ctx context.Context) error {
	scope, err := a.scope()
	if err != nil {
		return err
	}
	q, err := queue.NewBuilder(a.store, a.cfg.Queue.Limit).Build(ctx, scope, time.Now())
	if err != nil {
		return err
	}
	if q.Len() == 0 {
		fmt.Fprintln(a.out, "Nothing due. Come back later.")
		return nil
	}
	fmt.Fprintf(a.out, "%d cards due:\n", q.Len())
	for id := range q.All() {
		card, err := a.store.GetCard(ctx, id)
		if err != nil {
			return err
		}
		prompt, err := domain.Prompt(card.Content)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "  %s  %-15s %s\n", shortID(id), card.Type(), firstLine(prompt))
	}
	return nil
}

func (a *app) reviewCourse(ctx context.Context) error {
	scope, err := a.scope()
	if err != nil {
		return err
	}
	ctrl := session.NewController(a.store, &a.cfg.Scheduler, queue.NewBuilder(a.store, a.cfg.Queue.Limit), a.logger)
	s := session.New(scope)

	if err := ctrl.Start(ctx, s, time.Now()); err != nil {
		if errors.Is(err, session.ErrEmptyQueue) {
			fmt.Fprintln(a.out, "Nothing due. Come back later.")
			return nil
		}
		return err
	}

	err = newReviewer(ctrl, a.in, a.out).run(ctx, s)
	if s.State() != session.Completed {
		// Record how far an abandoned session got.
		if archErr := ctrl.Archive(context.WithoutCancel(ctx), s); archErr != nil {
			a.logger.Warn("Failed to archive session", "session", s.ID(), "error", archErr)
		}
	}
	printStats(a.out, s.Stats())
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
