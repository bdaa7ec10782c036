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
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sigs.k8s.io/release-utils/log"
	"sigs.k8s.io/release-utils/version"
)

func Execute() error {
	rootCmd := &cobra.Command{
		Short: "A tool to trigger and track Jenkins builds",
		Long: `metate: trigger builds on a remote Jenkins server and watch them finish

metate turns the asynchronous "enqueue a build" Jenkins API into a
synchronous operation: it submits a build request, resolves the queue
item to the real build number, then polls the build until it reaches
a terminal state, streaming the interesting parts of the console
output while it waits.

Builds can reference a git repository or upload a local directory as
a zipped build context. For example:

	metate github my-job --repo https://github.com/acme/app
	metate upload my-job --dir ./app

	`,
		Use:               "metate",
		SilenceUsage:      false,
		PersistentPreRunE: initLogging,
	}

	rootCmd.PersistentFlags().StringVar(
		&commandLineOpts.logLevel,
		"log-level",
		"info",
		fmt.Sprintf("the logging verbosity, either %s", log.LevelNames()),
	)

	addTrigger(rootCmd)
	addGitHub(rootCmd)
	addUpload(rootCmd)
	addJobs(rootCmd)
	addStatus(rootCmd)
	rootCmd.AddCommand(version.WithFont("larry3d"))

	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
		return err
	}
	return nil
}

type commandLineOptions struct {
	logLevel string
}

var commandLineOpts = &commandLineOptions{}

func initLogging(*cobra.Command, []string) error {
	return log.SetupGlobalLogger(commandLineOpts.logLevel)
}
