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
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/metate-build/metate/pkg/build"
	"github.com/metate-build/metate/pkg/jenkins"
)

func addJobs(parentCmd *cobra.Command) {
	serverOpts := &serverOptions{}

	jobsCmd := &cobra.Command{
		Short: "List the jobs configured on the server",
		Long: `metate jobs

The jobs subcommand lists every job the server exposes along with the
state of its last build.

	`,
		Use:               "jobs",
		SilenceUsage:      false,
		PersistentPreRunE: initLogging,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := serverOpts.Config()
			if err != nil {
				return fmt.Errorf("resolving server configuration: %w", err)
			}
			return runJobs(jenkins.New(cfg))
		},
	}

	serverOpts = addServerFlags(jobsCmd)
	parentCmd.AddCommand(jobsCmd)
}

// jobRow is one line of the listing. Rows keep their slice position
// so concurrent status lookups cannot reorder the output.
type jobRow struct {
	Name  string
	State string
}

func runJobs(client *jenkins.Client) error {
	ctx := context.Background()

	user, err := client.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}
	logrus.Infof("🔐 Connected to %s as %s", client.ServerURL(), user)

	jobs, err := client.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("listing jobs: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs configured on the server.")
		return nil
	}

	rows := make([]jobRow, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(5)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			state, err := lastBuildState(gctx, client, job.Name)
			if err != nil {
				return fmt.Errorf("reading state of job %s: %w", job.Name, err)
			}
			rows[i] = jobRow{Name: job.Name, State: state}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tLAST BUILD")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\n", row.Name, row.State)
	}
	return w.Flush()
}

func lastBuildState(ctx context.Context, client *jenkins.Client, job string) (string, error) {
	last, err := client.LastBuildNumber(ctx, job)
	if err != nil {
		return "", err
	}
	if last == 0 {
		return "never built", nil
	}
	status, err := client.BuildStatus(ctx, build.Build{Job: job, Number: last})
	if err != nil {
		return "", err
	}
	if status.Building {
		return fmt.Sprintf("#%d BUILDING", last), nil
	}
	return fmt.Sprintf("#%d %s", last, status.Terminal()), nil
}
