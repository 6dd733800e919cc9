// Package generation turns uploaded notes into cards asynchronously.
//
// Submit returns a Task handle at once. The task runs in its own goroutine
// and can be polled with Status, awaited with Wait or stopped with Cancel.
package generation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/studymate/internal/domain"
	"github.com/conorfennell/studymate/internal/parser"
)

// ErrNoCards means generation finished without producing a single card.
var ErrNoCards = errors.New("no cards generated")

// Request describes one upload of notes for a course.
type Request struct {
	CourseID string
	Name     string // file name, for logs
	Notes    []byte
}

// Generator produces card content from notes.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]domain.Content, error)
}

// Sink stores generated content as cards of a course. Content that already
// exists in the course is skipped, not duplicated.
type Sink interface {
	Import(ctx context.Context, courseID string, contents []domain.Content) (created, skipped int, err error)
}

// MarkdownGenerator reads notes written in the parser's markdown dialect.
type MarkdownGenerator struct {
	logger *slog.Logger
}

func NewMarkdownGenerator(logger *slog.Logger) *MarkdownGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarkdownGenerator{logger: logger}
}

// Generate parses the notes. Notes that cannot become a card are logged and
// skipped; if none can, the errors are returned together with ErrNoCards.
func (g *MarkdownGenerator) Generate(ctx context.Context, req Request) ([]domain.Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	notes, err := parser.Parse(bytes.NewReader(req.Notes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", req.Name, err)
	}
	contents, errs := parser.Contents(notes)
	for _, err := range errs {
		g.logger.Warn("Skipping note", "file", req.Name, "error", err)
	}
	if len(contents) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("%s: %w: %w", req.Name, ErrNoCards, errors.Join(errs...))
	}
	return contents, nil
}

// Status is the lifecycle position of a task.
type Status int

const (
	Pending Status = iota
	Running
	Succeeded
	Failed
	Canceled
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Finished reports whether the status is terminal.
func (s Status) Finished() bool {
	return s >= Succeeded
}

// Result counts the cards a task stored.
type Result struct {
	Created int
	Skipped int
}

// Task is the handle of one generation run.
type Task struct {
	id       string
	courseID string
	name     string
	cancel   context.CancelFunc
	done     chan struct{}

	mu     sync.Mutex
	status Status
	result Result
	err    error
}

func (t *Task) ID() string { return t.id }

func (t *Task) CourseID() string { return t.courseID }

func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Done is closed when the task reaches a terminal status.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the failure of a finished task, or nil.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Result returns the outcome so far; it is final once Done is closed.
func (t *Task) Result() Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Wait blocks until the task finishes or ctx is done. Giving up waiting does
// not cancel the task.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.result, t.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Cancel stops the task. It has no effect once the task has finished.
func (t *Task) Cancel() { t.cancel() }

func (t *Task) setStatus(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
}

func (t *Task) finish(res Result, err error) {
	t.mu.Lock()
	t.result = res
	t.err = err
	switch {
	case err == nil:
		t.status = Succeeded
	case errors.Is(err, context.Canceled):
		t.status = Canceled
	default:
		t.status = Failed
	}
	t.mu.Unlock()
	close(t.done)
}

// keepFinished is how many finished tasks a runner still answers lookups for.
const keepFinished = 128

// Runner starts generation tasks and keeps track of them. Running tasks can
// always be looked up; only the most recent finished ones are kept.
type Runner struct {
	gen     Generator
	sink    Sink
	timeout time.Duration
	logger  *slog.Logger
	keep    int

	wg       sync.WaitGroup
	mu       sync.Mutex
	tasks    map[string]*Task
	finished []string
}

// NewRunner returns a runner. A timeout of zero lets tasks run until they
// finish or are canceled.
func NewRunner(gen Generator, sink Sink, timeout time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		gen:     gen,
		sink:    sink,
		timeout: timeout,
		logger:  logger,
		keep:    keepFinished,
		tasks:   make(map[string]*Task),
	}
}

// Submit starts a task for req and returns its handle without waiting.
// Canceling ctx cancels the task.
func (r *Runner) Submit(ctx context.Context, req Request) *Task {
	ctx, cancel := context.WithCancel(ctx)
	task := &Task{
		id:       uuid.NewString(),
		courseID: req.CourseID,
		name:     req.Name,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	r.mu.Lock()
	r.tasks[task.id] = task
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.run(ctx, task, req)
		r.retire(task.id)
	}()
	return task
}

func (r *Runner) run(ctx context.Context, task *Task, req Request) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := ctx.Err(); err != nil {
		task.finish(Result{}, err)
		return
	}
	task.setStatus(Running)
	r.logger.Info("Generating cards", "task", task.id, "course", req.CourseID, "file", req.Name)

	res, err := r.generate(ctx, req)
	task.finish(res, err)
	if err != nil {
		r.logger.Error("Card generation failed", "task", task.id, "status", task.Status(), "error", err)
		return
	}
	r.logger.Info("Card generation complete", "task", task.id, "created", res.Created, "skipped", res.Skipped)
}

func (r *Runner) generate(ctx context.Context, req Request) (Result, error) {
	contents, err := r.gen.Generate(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if len(contents) == 0 {
		return Result{}, ErrNoCards
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	created, skipped, err := r.sink.Import(ctx, req.CourseID, contents)
	if err != nil {
		return Result{Created: created, Skipped: skipped}, fmt.Errorf("failed to store generated cards: %w", err)
	}
	return Result{Created: created, Skipped: skipped}, nil
}

// retire records a finished task and drops the oldest one past the limit.
func (r *Runner) retire(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, id)
	if len(r.finished) > r.keep {
		delete(r.tasks, r.finished[0])
		r.finished = slices.Delete(r.finished, 0, 1)
	}
}

// Task returns a submitted task by id. Finished tasks are forgotten once
// newer ones push them out.
func (r *Runner) Task(id string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	return t, ok
}

// Wait blocks until every submitted task has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}
