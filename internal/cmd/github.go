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

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/metate-build/metate/pkg/git"
	"github.com/metate-build/metate/pkg/trigger"
)

type githubOptions struct {
	RepoURL       string
	Branch        string
	CredentialsID string
	LocalPath     string
}

func (gho *githubOptions) Validate() error {
	if gho.RepoURL == "" {
		return errors.New("repository URL is required (use --repo or run inside a clone)")
	}
	return nil
}

func addGitHub(parentCmd *cobra.Command) {
	serverOpts := &serverOptions{}
	watchOpts := &watchOptions{}
	paramOpts := &paramOptions{}
	githubOpts := &githubOptions{}

	githubCmd := &cobra.Command{
		Short: "Trigger a build that clones a GitHub repository",
		Long: `metate github jobname

The github subcommand triggers a job that checks its build context out
of a GitHub repository instead of an uploaded archive. When run from
inside a clone, the repository URL and branch default to the clone's
origin remote and checked out branch.

	`,
		Use:               "github",
		SilenceUsage:      false,
		PersistentPreRunE: initLogging,
		Args:              cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			githubOpts.discoverDefaults()
			if err := githubOpts.Validate(); err != nil {
				return err
			}
			params, err := paramOpts.Parameters()
			if err != nil {
				return err
			}
			params["GIT_REPOSITORY_URL"] = githubOpts.RepoURL
			params["GIT_BRANCH"] = githubOpts.Branch
			if githubOpts.CredentialsID != "" {
				params["GIT_CREDENTIALS_ID"] = githubOpts.CredentialsID
			}
			logrus.Infof(
				"📦 Building %s (branch %s)", githubOpts.RepoURL, githubOpts.Branch,
			)
			return runTrigger(serverOpts, watchOpts, trigger.Request{
				Job:        args[0],
				Parameters: params,
			})
		},
	}

	githubCmd.PersistentFlags().StringVar(
		&githubOpts.RepoURL, "repo", "", "repository URL (defaults to the local clone's origin)",
	)
	githubCmd.PersistentFlags().StringVar(
		&githubOpts.Branch, "branch", "", "branch to build (defaults to the checked out branch, then main)",
	)
	githubCmd.PersistentFlags().StringVar(
		&githubOpts.CredentialsID, "credentials-id", "", "server credentials id for private repositories",
	)
	githubCmd.PersistentFlags().StringVar(
		&githubOpts.LocalPath, "path", ".", "local clone to read defaults from",
	)

	serverOpts = addServerFlags(githubCmd)
	watchOpts = addWatchFlags(githubCmd)
	paramOpts = addParamFlags(githubCmd)
	parentCmd.AddCommand(githubCmd)
}

// discoverDefaults fills the repository URL and branch from the local
// clone when the flags did not set them. Probe failures are only
// warnings; Validate reports what is still missing afterwards.
func (gho *githubOptions) discoverDefaults() {
	if gho.RepoURL != "" && gho.Branch != "" {
		return
	}

	repo := git.NewRepository(gho.LocalPath)

	if gho.RepoURL == "" {
		url, err := repo.SourceURL()
		if err != nil {
			logrus.Warnf("Could not read origin URL from %s: %v", gho.LocalPath, err)
		} else {
			gho.RepoURL = url
		}
	}
	if gho.Branch == "" {
		branch, err := repo.Branch()
		if err != nil {
			logrus.Warnf("Could not read checked out branch: %v", err)
		}
		if branch == "" {
			branch = "main"
		}
		gho.Branch = branch
	}
}
