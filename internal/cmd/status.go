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

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/metate-build/metate/pkg/build"
	"github.com/metate-build/metate/pkg/jenkins"
)

func addStatus(parentCmd *cobra.Command) {
	serverOpts := &serverOptions{}
	buildNumber := 0

	statusCmd := &cobra.Command{
		Short: "Show the state of a job's last or given build",
		Long: `metate status jobname

The status subcommand reports the state of a job: whether a request
for it is still waiting in the queue, and the outcome of its last
build (or of the build passed with --build).

	`,
		Use:               "status",
		SilenceUsage:      false,
		PersistentPreRunE: initLogging,
		Args:              cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := serverOpts.Config()
			if err != nil {
				return fmt.Errorf("resolving server configuration: %w", err)
			}
			return runStatus(jenkins.New(cfg), args[0], buildNumber)
		},
	}

	statusCmd.PersistentFlags().IntVar(
		&buildNumber, "build", 0, "build number to inspect (defaults to the last build)",
	)

	serverOpts = addServerFlags(statusCmd)
	parentCmd.AddCommand(statusCmd)
}

func runStatus(client *jenkins.Client, job string, number int) error {
	ctx := context.Background()

	exists, err := client.JobExists(ctx, job)
	if err != nil {
		return fmt.Errorf("checking job: %w", err)
	}
	if !exists {
		return fmt.Errorf("job %s does not exist on the server", job)
	}

	queued, err := client.JobQueued(ctx, job)
	if err != nil {
		return fmt.Errorf("checking queue: %w", err)
	}
	if queued {
		logrus.Infof("⏳ %s: PENDING (a request is waiting in the queue)", job)
	}

	if number == 0 {
		number, err = client.LastBuildNumber(ctx, job)
		if err != nil {
			return fmt.Errorf("reading last build number: %w", err)
		}
		if number == 0 {
			logrus.Infof("%s has never been built", job)
			return nil
		}
	}

	status, err := client.BuildStatus(ctx, build.Build{Job: job, Number: number})
	if err != nil {
		return fmt.Errorf("reading build status: %w", err)
	}

	switch {
	case status.Building:
		logrus.Infof("🚧 %s #%d: BUILDING", job, number)
	default:
		logrus.Infof("%s #%d: %s", job, number, status.Terminal())
	}
	if status.URL != "" {
		logrus.Infof("URL:      %s", status.URL)
	}
	if status.Duration > 0 {
		logrus.Infof("Duration: %s", status.Duration.Round(time.Second))
	}
	if !status.Timestamp.IsZero() {
		logrus.Infof("Started:  %s", status.Timestamp.Format(time.RFC1123))
	}

	if !status.Building {
		artifacts, err := client.BuildArtifacts(ctx, build.Build{Job: job, Number: number})
		if err != nil {
			logrus.Warnf("Listing build artifacts: %v", err)
			return nil
		}
		for _, artifact := range artifacts {
			logrus.Infof("Artifact: %s", artifact.RelativePath)
		}
	}
	return nil
}
