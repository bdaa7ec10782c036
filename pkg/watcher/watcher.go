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

package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/metate-build/metate/pkg/build"
	"github.com/metate-build/metate/pkg/console"
	"github.com/metate-build/metate/pkg/jenkins"
)

const (
	defaultLogInterval    = 3 * time.Second
	defaultStatusInterval = 10 * time.Second
	defaultWatchTimeout   = 1800 * time.Second
)

// ErrWatchTimeout signals the build did not reach a terminal state
// before the watcher's deadline.
var ErrWatchTimeout = errors.New("timed out waiting for build to finish")

// Watcher polls a known build until it stops running, optionally
// streaming annotated console output while it does.
type Watcher struct {
	Client *jenkins.Client

	// LogInterval is the poll pause while streaming logs,
	// StatusInterval the pause in status-only mode. Timeout is a
	// wall-clock deadline checked at poll boundaries; a slow request
	// can overrun it slightly.
	LogInterval    time.Duration
	StatusInterval time.Duration
	Timeout        time.Duration

	StreamLogs bool
	Verbose    bool
}

func NewWatcher(client *jenkins.Client) *Watcher {
	return &Watcher{
		Client:         client,
		LogInterval:    defaultLogInterval,
		StatusInterval: defaultStatusInterval,
		Timeout:        defaultWatchTimeout,
		StreamLogs:     true,
	}
}

// Watch blocks until the build's running flag drops, returning the
// final status snapshot and, when logs were streamed, the cumulative
// console text. Transient fetch errors do not abort the wait.
func (w *Watcher) Watch(ctx context.Context, b build.Build) (*build.Status, string, error) {
	logrus.Infof("📊 Monitoring build %s", b)

	interval := w.StatusInterval
	if w.StreamLogs {
		interval = w.LogInterval
	}

	tailer := console.NewTailer(w.Verbose)
	consoleText := ""
	started := time.Now()
	deadline := started.Add(w.Timeout)

	for {
		status, err := w.Client.BuildStatus(ctx, b)
		if err != nil {
			logrus.Warnf("Fetching build status: %v", err)
		} else {
			if w.StreamLogs {
				consoleText = w.tail(ctx, b, tailer, consoleText)
			}
			if !status.Building {
				return status, consoleText, nil
			}
			elapsed := status.Duration
			if elapsed == 0 {
				elapsed = time.Since(started)
			}
			logrus.Infof("⏳ Build in progress (%s elapsed)", elapsed.Round(time.Second))
		}

		if time.Now().After(deadline) {
			return nil, consoleText, fmt.Errorf("%w (%s)", ErrWatchTimeout, w.Timeout)
		}
		if err := sleep(ctx, interval); err != nil {
			return nil, consoleText, err
		}
	}
}

// tail fetches the cumulative console text, logs annotations for
// the part beyond the cursor and returns the latest full text. Log
// fetch failures are ignored; the next iteration retries from the
// same cursor.
func (w *Watcher) tail(ctx context.Context, b build.Build, tailer *console.Tailer, last string) string {
	text, err := w.Client.ConsoleText(ctx, b)
	if err != nil {
		logrus.Debugf("Fetching console text: %v", err)
		return last
	}
	for _, note := range tailer.Annotate(tailer.Tail(text)) {
		logrus.Info(note.String())
	}
	return text
}
