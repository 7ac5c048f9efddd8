package qart

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"path"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/quatton/qpaper/pkg/qerr"
	"github.com/quatton/qpaper/pkg/qjob"
	"github.com/quatton/qpaper/pkg/qspec"
)

// Retry defaults for result visibility. Object storage mounts flush
// asynchronously, so a notebook can show up a little after the job finished.
const (
	DefaultAttempts = 5
	DefaultInitial  = 500 * time.Millisecond
	DefaultFactor   = 2.0
	DefaultCap      = 2 * time.Second
)

// LocatorConfig bounds the visibility retries.
type LocatorConfig struct {
	Attempts int
	Initial  time.Duration
	Factor   float64
	Cap      time.Duration
}

func (c LocatorConfig) withDefaults() LocatorConfig {
	if c.Attempts <= 0 {
		c.Attempts = DefaultAttempts
	}
	if c.Initial <= 0 {
		c.Initial = DefaultInitial
	}
	if c.Factor < 1 {
		c.Factor = DefaultFactor
	}
	if c.Cap <= 0 {
		c.Cap = DefaultCap
	}
	return c
}

// Locator finds the output notebook of a successful job.
type Locator struct {
	store Store
	cfg   LocatorConfig
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLocator creates a locator. A nil store returns paths unverified.
func NewLocator(store Store, cfg LocatorConfig) *Locator {
	return &Locator{store: store, cfg: cfg.withDefaults(), sleep: sleepContext}
}

// Locate returns the job's result once it is visible in the store, together
// with the output the notebook published through scrapbook.
func (l *Locator) Locate(ctx context.Context, job *batchv1.Job) (*qjob.Result, error) {
	output := job.Annotations[qspec.AnnotationResult]
	if output == "" {
		return nil, qerr.NotFound("no result path recorded").ForJob(job.Name)
	}
	result := &qjob.Result{Path: output, Link: job.Annotations[qspec.AnnotationLink]}
	if l.store == nil {
		return result, nil
	}

	backoff := wait.Backoff{Duration: l.cfg.Initial, Factor: l.cfg.Factor, Steps: l.cfg.Attempts}
	var lastErr error
	for attempt := 1; attempt <= l.cfg.Attempts; attempt++ {
		artifact, err := l.store.Stat(ctx, output)
		if err == nil {
			result.DownloadURL = artifact.URL
			out, outErr := l.output(ctx, output)
			if outErr != nil {
				return nil, outErr.ForJob(job.Name)
			}
			result.Output = out
			return result, nil
		}
		if errors.Is(err, ErrOutsideStore) {
			return nil, qerr.Wrap(qerr.KindNotFound, err, "result %s", output).ForJob(job.Name)
		}
		lastErr = err
		if attempt == l.cfg.Attempts {
			break
		}

		delay := backoff.Step()
		if delay > l.cfg.Cap {
			delay = l.cfg.Cap
		}
		if err := l.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, qerr.Wrap(qerr.KindNotFound, lastErr, "result %s not visible after %d attempts", output, l.cfg.Attempts).ForJob(job.Name)
}

// output reads the scraps of the executed notebook. A result-file scrap wins,
// otherwise the first scrap is served.
func (l *Locator) output(ctx context.Context, notebookPath string) (*qjob.Output, *qerr.Error) {
	rc, err := l.store.Open(ctx, notebookPath)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindInternal, err, "reading notebook %s", notebookPath)
	}
	defer rc.Close()

	scraps, err := ReadScraps(rc)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindInternal, err, "reading notebook %s", notebookPath)
	}
	if len(scraps) == 0 {
		return nil, nil
	}
	if s := findScrap(scraps, ResultFileScrap); s != nil {
		return l.resultFile(ctx, s)
	}
	return scraps[0].Output(), nil
}

func (l *Locator) resultFile(ctx context.Context, s *Scrap) (*qjob.Output, *qerr.Error) {
	var name string
	if err := json.Unmarshal(s.Data, &name); err != nil || name == "" {
		return nil, qerr.Wrap(qerr.KindInternal, err, "scrap %s must hold a file path", ResultFileScrap)
	}
	file := name
	if !path.IsAbs(file) {
		file = path.Join(qspec.HomeDir, file)
	}

	rc, err := l.store.Open(ctx, file)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrOutsideStore) {
			return nil, qerr.Wrap(qerr.KindNotFound, err, "result file %s", file)
		}
		return nil, qerr.Wrap(qerr.KindInternal, err, "reading result file %s", file)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindInternal, err, "reading result file %s", file)
	}
	return &qjob.Output{
		Name:      ResultFileScrap,
		MediaType: mime.TypeByExtension(path.Ext(file)),
		Content:   content,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
