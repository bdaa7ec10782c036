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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/metate-build/metate/pkg/jenkins"
	"github.com/metate-build/metate/pkg/trigger"
	"github.com/metate-build/metate/pkg/watcher"
)

// serverOptions carry the connection settings shared by every
// command. Values can come from flags, a config file or METATE_*
// environment variables; flags act as defaults the file overrides.
type serverOptions struct {
	URL        string
	Username   string
	APIToken   string
	ConfigFile string
}

func addServerFlags(command *cobra.Command) *serverOptions {
	opts := &serverOptions{}
	command.PersistentFlags().StringVar(
		&opts.URL,
		"server",
		"http://localhost:8080",
		"URL of the Jenkins server",
	)
	command.PersistentFlags().StringVar(
		&opts.Username,
		"username",
		"admin",
		"Jenkins user name",
	)
	command.PersistentFlags().StringVar(
		&opts.APIToken,
		"api-token",
		"",
		"Jenkins API token (not the account password)",
	)
	command.PersistentFlags().StringVar(
		&opts.ConfigFile,
		"config",
		"",
		"yaml/json file with server settings (file values override flags, METATE_* env vars override both)",
	)
	return opts
}

// Config resolves the effective client configuration. No process
// global state: the resulting struct travels explicitly into every
// component that needs it.
func (so *serverOptions) Config() (jenkins.Config, error) {
	v := viper.New()
	v.SetDefault("server", so.URL)
	v.SetDefault("username", so.Username)
	v.SetDefault("api-token", so.APIToken)
	v.SetEnvPrefix("METATE")
	// Hyphenated keys have to map to exportable names
	// (api-token -> METATE_API_TOKEN).
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if so.ConfigFile != "" {
		v.SetConfigFile(so.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return jenkins.Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := jenkins.Config{
		URL:      v.GetString("server"),
		Username: v.GetString("username"),
		APIToken: v.GetString("api-token"),
	}
	if cfg.URL == "" {
		return cfg, errors.New("no Jenkins server URL configured")
	}
	return cfg, nil
}

// watchOptions carry the flags controlling resolution and waiting.
type watchOptions struct {
	NoMonitor    bool
	NoLogs       bool
	Verbose      bool
	KeepConsole  bool
	Strategy     string
	QueuePolls   int
	BuildTimeout time.Duration
}

func addWatchFlags(command *cobra.Command) *watchOptions {
	opts := &watchOptions{}
	command.PersistentFlags().BoolVar(
		&opts.NoMonitor,
		"no-monitor",
		false,
		"return as soon as the build starts instead of waiting for it",
	)
	command.PersistentFlags().BoolVar(
		&opts.NoLogs,
		"no-logs",
		false,
		"poll build status only, without streaming console output",
	)
	command.PersistentFlags().BoolVar(
		&opts.Verbose,
		"verbose",
		false,
		"surface build-step details from the console output",
	)
	command.PersistentFlags().BoolVar(
		&opts.KeepConsole,
		"keep-console",
		false,
		"keep the full console text in the final summary",
	)
	command.PersistentFlags().StringVar(
		&opts.Strategy,
		"resolve-strategy",
		"queue-item",
		"build number resolution strategy (queue-item or predictive)",
	)
	command.PersistentFlags().IntVar(
		&opts.QueuePolls,
		"queue-wait",
		120,
		"queue polls to wait for the build to start (roughly seconds at the default 1s interval)",
	)
	command.PersistentFlags().DurationVar(
		&opts.BuildTimeout,
		"build-timeout",
		1800*time.Second,
		"how long to wait for the build to finish",
	)
	return opts
}

// TriggerOptions maps the flags to orchestrator options.
func (wo *watchOptions) TriggerOptions() (trigger.Options, error) {
	strategy, err := watcher.ParseStrategy(wo.Strategy)
	if err != nil {
		return trigger.Options{}, err
	}
	opts := trigger.DefaultOptions()
	opts.Strategy = strategy
	opts.QueuePolls = wo.QueuePolls
	opts.BuildTimeout = wo.BuildTimeout
	opts.Monitor = !wo.NoMonitor
	opts.StreamLogs = !wo.NoLogs
	opts.Verbose = wo.Verbose
	opts.KeepConsole = wo.KeepConsole
	return opts, nil
}
