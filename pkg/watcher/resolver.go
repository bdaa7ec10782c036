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
	"github.com/metate-build/metate/pkg/jenkins"
)

// Strategy selects how a submitted trigger is mapped to the
// authoritative build number.
type Strategy int

const (
	// StrategyQueueItem polls the queue item returned by the
	// submission until the server assigns it a build. Safe under
	// concurrent triggers of the same job.
	StrategyQueueItem Strategy = iota

	// StrategyPredictive guesses the next build number from the last
	// known one and waits for a matching running build. Kept for
	// servers where the queue API is unavailable; racy when two
	// triggers of the same job overlap.
	StrategyPredictive
)

func (s Strategy) String() string {
	if s == StrategyPredictive {
		return "predictive"
	}
	return "queue-item"
}

// ParseStrategy maps a configuration string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "queue", "queue-item":
		return StrategyQueueItem, nil
	case "predictive":
		return StrategyPredictive, nil
	}
	return StrategyQueueItem, fmt.Errorf("unknown resolution strategy %q", s)
}

// ErrNotResolved signals that a queue handle could not be mapped to
// a build number before the poll budget ran out, or that the queue
// record expired before we observed its build assignment.
var ErrNotResolved = errors.New("build number could not be resolved")

const (
	defaultResolveInterval = 1 * time.Second
	defaultResolveBackoff  = 2 * time.Second
	defaultResolvePolls    = 120

	// progressEvery is how many polls pass between "still queued"
	// notices.
	progressEvery = 10
)

// Resolver maps a queue handle to the build it eventually becomes.
type Resolver struct {
	Client   *jenkins.Client
	Strategy Strategy

	// Interval is the pause between successful polls, Backoff the
	// longer pause after a transient error. MaxPolls bounds the
	// number of poll iterations; with the default one second
	// interval it doubles as a rough deadline in seconds.
	Interval time.Duration
	Backoff  time.Duration
	MaxPolls int
}

func NewResolver(client *jenkins.Client, strategy Strategy) *Resolver {
	return &Resolver{
		Client:   client,
		Strategy: strategy,
		Interval: defaultResolveInterval,
		Backoff:  defaultResolveBackoff,
		MaxPolls: defaultResolvePolls,
	}
}

// Resolve blocks until the submitted trigger has an authoritative
// build number or the poll budget is exhausted. queueID is used by
// the queue-item strategy, expected by the predictive one.
func (r *Resolver) Resolve(ctx context.Context, job string, queueID int64, expected int) (build.Build, error) {
	if r.Strategy == StrategyPredictive {
		return r.resolvePredictive(ctx, job, expected)
	}
	return r.resolveQueueItem(ctx, job, queueID)
}

// resolveQueueItem polls the queue entry until the server reports
// the executable it became. A 404 is definitive: the entry was
// reclaimed and the caller has to fall back or report failure.
func (r *Resolver) resolveQueueItem(ctx context.Context, job string, queueID int64) (build.Build, error) {
	logrus.Infof("⏳ Waiting for build to start (queue item %d)", queueID)

	for i := 0; i < r.MaxPolls; i++ {
		item, err := r.Client.QueueItem(ctx, queueID)
		if err != nil {
			if errors.Is(err, jenkins.ErrQueueItemGone) {
				logrus.Warnf("Queue item %d was reclaimed, the build may have started already", queueID)
				return build.Build{}, fmt.Errorf("%w: queue item expired", ErrNotResolved)
			}
			logrus.Warnf("Checking queue item %d: %v", queueID, err)
			if err := sleep(ctx, r.Backoff); err != nil {
				return build.Build{}, err
			}
			continue
		}

		if item.Executable != nil && item.Executable.Number > 0 {
			b := build.Build{Job: job, Number: item.Executable.Number}
			logrus.Infof("🚀 Build started: %s", b)
			return b, nil
		}

		if i%progressEvery == 0 {
			logrus.Infof("Build still queued (%d/%d)", i+1, r.MaxPolls)
		}
		if err := sleep(ctx, r.Interval); err != nil {
			return build.Build{}, err
		}
	}
	return build.Build{}, fmt.Errorf("%w after %d polls of queue item %d", ErrNotResolved, r.MaxPolls, queueID)
}

// resolvePredictive waits for the job to leave the pending queue and
// accepts the job's newest build as ours once its number reaches the
// expected one and it reports as running.
//
// Two overlapping triggers of the same job can both observe the same
// new build and both resolve to it. That is inherent to guessing
// numbers instead of asking the queue; prefer StrategyQueueItem.
func (r *Resolver) resolvePredictive(ctx context.Context, job string, expected int) (build.Build, error) {
	logrus.Infof("⏳ Waiting for build to start (expecting %s #%d or later)", job, expected)

	for i := 0; i < r.MaxPolls; i++ {
		queued, err := r.Client.JobQueued(ctx, job)
		if err != nil {
			logrus.Warnf("Checking pending queue: %v", err)
			if err := sleep(ctx, r.Backoff); err != nil {
				return build.Build{}, err
			}
			continue
		}

		if queued {
			if i%progressEvery == 0 {
				logrus.Infof("Build still queued (%d/%d)", i+1, r.MaxPolls)
			}
			if err := sleep(ctx, r.Interval); err != nil {
				return build.Build{}, err
			}
			continue
		}

		current, err := r.Client.LastBuildNumber(ctx, job)
		if err != nil {
			logrus.Warnf("Fetching last build number: %v", err)
			if err := sleep(ctx, r.Backoff); err != nil {
				return build.Build{}, err
			}
			continue
		}

		if current >= expected {
			b := build.Build{Job: job, Number: current}
			status, err := r.Client.BuildStatus(ctx, b)
			if err == nil && status.Building {
				logrus.Infof("🚀 Build started: %s", b)
				return b, nil
			}
		}

		if err := sleep(ctx, r.Interval); err != nil {
			return build.Build{}, err
		}
	}
	return build.Build{}, fmt.Errorf("%w after %d polls for %s", ErrNotResolved, r.MaxPolls, job)
}

// sleep pauses between polls, returning early if the context ends.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
