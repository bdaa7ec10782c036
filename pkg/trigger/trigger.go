/*
Copyright 2023 The Metate Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package trigger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/metate-build/metate/pkg/build"
	"github.com/metate-build/metate/pkg/console"
	"github.com/metate-build/metate/pkg/jenkins"
	"github.com/metate-build/metate/pkg/watcher"
)

// Reported statuses beyond the terminal build results. These let a
// caller tell a resolution problem from a failed build.
const (
	StatusNotFound     = "NOT_FOUND"
	StatusPrecondition = "PRECONDITION"
	StatusUnresolved   = "UNRESOLVED"
	StatusTimeout      = "TIMEOUT"
	StatusTriggered    = "TRIGGERED"
	StatusError        = "ERROR"
)

const (
	// predictiveRetries bounds the legacy fallback attempts when the
	// submission response yields no queue handle.
	predictiveRetries = 3
	retryDelay        = 5 * time.Second

	// fallbackPolls is the per-attempt poll budget of the predictive
	// fallback, shorter than the primary queue wait.
	fallbackPolls = 60
)

// Options configures one trigger-and-wait operation. The zero value
// is not useful; use DefaultOptions as a base.
type Options struct {
	Strategy     watcher.Strategy
	QueuePolls   int
	BuildTimeout time.Duration
	Monitor      bool
	StreamLogs   bool
	Verbose      bool
	KeepConsole  bool
}

func DefaultOptions() Options {
	return Options{
		Strategy:     watcher.StrategyQueueItem,
		QueuePolls:   120,
		BuildTimeout: 1800 * time.Second,
		Monitor:      true,
		StreamLogs:   true,
	}
}

// Request describes one build to trigger. Immutable once submitted.
type Request struct {
	Job        string
	Parameters map[string]string

	// ArchivePath optionally points at a local file streamed to the
	// job as its BUILD_ARCHIVE parameter.
	ArchivePath string
}

// Result is the terminal outcome of a trigger-and-wait operation.
// Produced once; callers must not mutate it.
type Result struct {
	Success     bool
	Status      string
	Message     string
	Job         string
	BuildNumber int
	QueueID     int64
	URL         string
	Duration    time.Duration
	Console     string
	Image       console.ImageInfo
}

// Orchestrator composes submission, queue resolution and completion
// watching into a single synchronous operation.
type Orchestrator struct {
	client *jenkins.Client
	opts   Options
}

func New(client *jenkins.Client, opts Options) *Orchestrator {
	return &Orchestrator{
		client: client,
		opts:   opts,
	}
}

// SubmitAndWait triggers the build and blocks until it finishes (or
// a step fails definitively). All failures come back as a structured
// result; the method never panics on server behavior.
func (o *Orchestrator) SubmitAndWait(ctx context.Context, req Request) *Result {
	result := &Result{Job: req.Job}

	exists, err := o.client.JobExists(ctx, req.Job)
	if err != nil {
		return fail(result, StatusError, fmt.Sprintf("checking job: %v", err))
	}
	if !exists {
		return fail(result, StatusNotFound, fmt.Sprintf("job %q does not exist", req.Job))
	}

	var artifact *jenkins.Artifact
	if req.ArchivePath != "" {
		f, err := openArtifact(req.ArchivePath)
		if err != nil {
			return fail(result, StatusPrecondition, err.Error())
		}
		defer f.Close()
		artifact = &jenkins.Artifact{Name: filepath.Base(req.ArchivePath), Data: f}
		logrus.Infof("📤 Uploading %s with the build request", req.ArchivePath)
	}

	// The predictive guess has to be computed before submission so
	// the new build is not counted as already existing.
	expected := 1
	if last, err := o.client.LastBuildNumber(ctx, req.Job); err != nil {
		logrus.Warnf("Fetching last build number: %v", err)
	} else {
		expected = last + 1
	}

	logrus.Infof("🚀 Triggering build of job %s", req.Job)
	queueID, err := o.client.Trigger(ctx, req.Job, req.Parameters, artifact)
	if err != nil && !errors.Is(err, jenkins.ErrNoQueueHandle) {
		return fail(result, StatusError, fmt.Sprintf("submitting build: %v", err))
	}
	result.QueueID = queueID

	b, rerr := o.resolve(ctx, req, queueID, expected, err)
	if rerr != nil {
		return fail(result, StatusUnresolved, fmt.Sprintf("resolving build number: %v", rerr))
	}
	result.BuildNumber = b.Number
	result.URL = fmt.Sprintf("%s/job/%s/%d/", o.client.ServerURL(), b.Job, b.Number)

	if !o.opts.Monitor {
		result.Success = true
		result.Status = StatusTriggered
		result.Message = fmt.Sprintf("build %s started, not monitored", b)
		return result
	}

	w := watcher.NewWatcher(o.client)
	w.Timeout = o.opts.BuildTimeout
	w.StreamLogs = o.opts.StreamLogs
	w.Verbose = o.opts.Verbose

	status, consoleText, err := w.Watch(ctx, b)
	if err != nil {
		if errors.Is(err, watcher.ErrWatchTimeout) {
			return fail(result, StatusTimeout, err.Error())
		}
		return fail(result, StatusError, fmt.Sprintf("waiting for build: %v", err))
	}

	return o.assemble(ctx, result, b, status, consoleText)
}

// resolve maps the submission outcome to a build number. When no
// queue handle could be extracted it retries the submission once and
// then falls back to the predictive strategy.
func (o *Orchestrator) resolve(ctx context.Context, req Request, queueID int64, expected int, submitErr error) (build.Build, error) {
	if o.opts.Strategy == watcher.StrategyPredictive {
		r := watcher.NewResolver(o.client, watcher.StrategyPredictive)
		r.MaxPolls = o.opts.QueuePolls
		return r.Resolve(ctx, req.Job, 0, expected)
	}

	if errors.Is(submitErr, jenkins.ErrNoQueueHandle) {
		logrus.Warn("Submission response had no queue handle, re-submitting")
		// The first submission consumed the artifact reader, so an
		// upload build needs the archive opened again.
		var artifact *jenkins.Artifact
		if req.ArchivePath != "" {
			f, err := openArtifact(req.ArchivePath)
			if err != nil {
				return build.Build{}, fmt.Errorf("reopening artifact for re-submission: %w", err)
			}
			defer f.Close()
			artifact = &jenkins.Artifact{Name: filepath.Base(req.ArchivePath), Data: f}
		}
		id, err := o.client.Trigger(ctx, req.Job, req.Parameters, artifact)
		if err == nil {
			queueID = id
		} else if !errors.Is(err, jenkins.ErrNoQueueHandle) {
			return build.Build{}, fmt.Errorf("re-submitting build: %w", err)
		}
	}

	if queueID > 0 {
		r := watcher.NewResolver(o.client, watcher.StrategyQueueItem)
		r.MaxPolls = o.opts.QueuePolls
		return r.Resolve(ctx, req.Job, queueID, expected)
	}

	return o.resolveFallback(ctx, req.Job, expected)
}

// resolveFallback runs the legacy predictive resolution when no
// queue handle survived submission. Retries recompute the expected
// number, which keeps working only while our build has not started;
// that blind spot is part of the legacy strategy's contract.
func (o *Orchestrator) resolveFallback(ctx context.Context, job string, expected int) (build.Build, error) {
	logrus.Warn("Falling back to predictive build number resolution")

	r := watcher.NewResolver(o.client, watcher.StrategyPredictive)
	r.MaxPolls = fallbackPolls

	var lastErr error
	for attempt := 0; attempt < predictiveRetries; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, retryDelay); err != nil {
				return build.Build{}, err
			}
			if last, err := o.client.LastBuildNumber(ctx, job); err == nil {
				expected = last + 1
			}
		}
		b, err := r.Resolve(ctx, job, 0, expected)
		if err == nil {
			return b, nil
		}
		lastErr = err
		logrus.Warnf("Predictive resolution attempt %d/%d failed: %v", attempt+1, predictiveRetries, err)
	}
	return build.Build{}, lastErr
}

// assemble classifies the terminal state and fills in the result.
func (o *Orchestrator) assemble(ctx context.Context, result *Result, b build.Build, status *build.Status, consoleText string) *Result {
	if status.URL != "" {
		result.URL = status.URL
	}
	result.Duration = status.Duration

	if consoleText == "" && o.opts.KeepConsole {
		text, err := o.client.ConsoleText(ctx, b)
		if err != nil {
			logrus.Warnf("Fetching console output: %v", err)
		} else {
			consoleText = text
		}
	}
	if o.opts.KeepConsole {
		result.Console = consoleText
	}
	if consoleText != "" {
		result.Image = console.ExtractImageInfo(consoleText)
	}

	terminal := status.Terminal()
	result.Status = terminal
	switch terminal {
	case build.ResultSuccess:
		result.Success = true
		result.Message = fmt.Sprintf("build %s succeeded in %s", b, status.Duration.Round(time.Second))
	case build.ResultFailure:
		result.Message = fmt.Sprintf("build %s failed", b)
	case build.ResultAborted:
		result.Message = fmt.Sprintf("build %s was aborted", b)
	default:
		result.Message = fmt.Sprintf("build %s finished with result %q", b, status.Result)
	}
	return result
}

func openArtifact(path string) (*os.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("artifact %s is not readable: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("artifact %s is a directory, expected a file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening artifact %s: %w", path, err)
	}
	return f, nil
}

func fail(result *Result, status, message string) *Result {
	result.Success = false
	result.Status = status
	result.Message = message
	return result
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
