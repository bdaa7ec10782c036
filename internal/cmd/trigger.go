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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/metate-build/metate/pkg/jenkins"
	"github.com/metate-build/metate/pkg/trigger"
)

// paramOptions are the build parameters shared by the trigger,
// github and upload commands.
type paramOptions struct {
	AppName     string
	AppVersion  string
	Context     string
	TagStrategy string
	Platforms   string
	MultiArch   bool
	UniqueID    string
	Extra       []string
}

func addParamFlags(command *cobra.Command) *paramOptions {
	opts := &paramOptions{}
	command.PersistentFlags().StringVar(
		&opts.AppName, "app-name", "my-app", "application name passed to the job",
	)
	command.PersistentFlags().StringVar(
		&opts.AppVersion, "app-version", "1.0.0", "application version passed to the job",
	)
	command.PersistentFlags().StringVar(
		&opts.Context, "build-context", "", "build context directory inside the workspace",
	)
	command.PersistentFlags().StringVar(
		&opts.TagStrategy, "tag-strategy", "version-build", "image tag strategy (version-build, latest, timestamp)",
	)
	command.PersistentFlags().StringVar(
		&opts.Platforms, "platforms", "linux/amd64", "target platforms, comma separated",
	)
	command.PersistentFlags().BoolVar(
		&opts.MultiArch, "multi-arch", false, "shortcut for building linux/amd64 and linux/arm64",
	)
	command.PersistentFlags().StringVar(
		&opts.UniqueID, "build-unique-id", "", "unique build identifier (generated when empty)",
	)
	command.PersistentFlags().StringSliceVar(
		&opts.Extra, "param", []string{}, "additional NAME=value build parameters",
	)
	return opts
}

// Parameters assembles the parameter map sent to the job. A missing
// unique id gets a timestamp-uuid value so re-triggers stay
// distinguishable on the server side.
func (po *paramOptions) Parameters() (map[string]string, error) {
	platforms := po.Platforms
	if po.MultiArch {
		platforms = "linux/amd64,linux/arm64"
	}

	uniqueID := strings.TrimSpace(po.UniqueID)
	if uniqueID == "" {
		uniqueID = fmt.Sprintf(
			"%s-%s", time.Now().Format("20060102-150405"), uuid.NewString()[:8],
		)
	}

	params := map[string]string{
		"APP_NAME":           po.AppName,
		"APP_VERSION":        po.AppVersion,
		"IMAGE_TAG_STRATEGY": po.TagStrategy,
		"BUILD_PLATFORMS":    platforms,
		"BUILD_UNIQUE_ID":    uniqueID,
	}
	if po.Context != "" {
		params["BUILD_CONTEXT"] = po.Context
	}

	for _, kv := range po.Extra {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid build parameter %q, expected NAME=value", kv)
		}
		params[name] = value
	}
	return params, nil
}

func addTrigger(parentCmd *cobra.Command) {
	serverOpts := &serverOptions{}
	watchOpts := &watchOptions{}
	paramOpts := &paramOptions{}

	triggerCmd := &cobra.Command{
		Short: "Trigger a parameterized build and wait for it",
		Long: `metate trigger jobname

The trigger subcommand submits a parameterized build request to the
Jenkins server, waits for the queued request to become a real build
and then tracks that build to completion, reporting the terminal
result.

	`,
		Use:               "trigger",
		SilenceUsage:      false,
		PersistentPreRunE: initLogging,
		Args:              cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := paramOpts.Parameters()
			if err != nil {
				return err
			}
			return runTrigger(serverOpts, watchOpts, trigger.Request{
				Job:        args[0],
				Parameters: params,
			})
		},
	}

	serverOpts = addServerFlags(triggerCmd)
	watchOpts = addWatchFlags(triggerCmd)
	paramOpts = addParamFlags(triggerCmd)
	parentCmd.AddCommand(triggerCmd)
}

// runTrigger builds the collaborators from the options and runs the
// operation, translating a failed result into a command error.
func runTrigger(serverOpts *serverOptions, watchOpts *watchOptions, req trigger.Request) error {
	cfg, err := serverOpts.Config()
	if err != nil {
		return fmt.Errorf("resolving server configuration: %w", err)
	}
	opts, err := watchOpts.TriggerOptions()
	if err != nil {
		return err
	}

	client := jenkins.New(cfg)
	result := trigger.New(client, opts).SubmitAndWait(context.Background(), req)
	printResult(result)
	if !result.Success {
		return errors.New(result.Message)
	}
	return nil
}

func printResult(result *trigger.Result) {
	logrus.Info(strings.Repeat("-", 60))
	if result.Success {
		logrus.Infof("🎉 %s", result.Message)
	} else {
		logrus.Errorf("💥 %s", result.Message)
	}
	if result.BuildNumber > 0 {
		logrus.Infof("Build:    %s #%d", result.Job, result.BuildNumber)
	}
	if result.URL != "" {
		logrus.Infof("URL:      %s", result.URL)
	}
	if result.Duration > 0 {
		logrus.Infof("Duration: %s", result.Duration.Round(time.Second))
	}
	if !result.Image.Empty() {
		if result.Image.Image != "" {
			logrus.Infof("Image:    %s", result.Image.Image)
		}
		if result.Image.Registry != "" {
			logrus.Infof("Registry: %s", result.Image.Registry)
		}
		if result.Image.Digest != "" {
			logrus.Infof("Digest:   %s", result.Image.Digest)
		}
	}
}
