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
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/metate-build/metate/pkg/archive"
	"github.com/metate-build/metate/pkg/trigger"
)

type uploadOptions struct {
	Directory string
	Archive   string
	Keep      bool
	Scaffold  bool
}

func (uo *uploadOptions) Validate() error {
	if uo.Directory == "" && uo.Archive == "" {
		return errors.New("either a build context directory or an archive is required")
	}
	if uo.Directory != "" && uo.Archive != "" {
		return errors.New("a directory and an archive cannot both be specified")
	}
	return nil
}

func addUpload(parentCmd *cobra.Command) {
	serverOpts := &serverOptions{}
	watchOpts := &watchOptions{}
	paramOpts := &paramOptions{}
	uploadOpts := &uploadOptions{}

	uploadCmd := &cobra.Command{
		Short: "Upload a build context and trigger a build from it",
		Long: `metate upload jobname [directory]

The upload subcommand packs a local build context into a zip archive,
submits it to the job as a file parameter and tracks the resulting
build. With --scaffold, a minimal example context is generated first
so the whole flow can be exercised against a fresh server.

	`,
		Use:               "upload",
		SilenceUsage:      false,
		PersistentPreRunE: initLogging,
		Args:              cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 && uploadOpts.Directory == "" {
				uploadOpts.Directory = args[1]
			}
			if uploadOpts.Scaffold {
				if uploadOpts.Directory == "" {
					uploadOpts.Directory = "metate-example-app"
				}
				if err := archive.ScaffoldExample(uploadOpts.Directory); err != nil {
					return fmt.Errorf("scaffolding example context: %w", err)
				}
				logrus.Infof("📝 Wrote example build context to %s", uploadOpts.Directory)
			}
			if err := uploadOpts.Validate(); err != nil {
				return err
			}

			archivePath := uploadOpts.Archive
			if archivePath == "" {
				if _, err := os.Stat(uploadOpts.Directory); err != nil {
					return fmt.Errorf("checking build context: %w", err)
				}
				path, err := archive.Create(uploadOpts.Directory)
				if err != nil {
					return fmt.Errorf("packing build context: %w", err)
				}
				archivePath = path
				if !uploadOpts.Keep {
					defer archive.Remove(archivePath)
				}
				logrus.Infof("🗜️  Packed %s into %s", uploadOpts.Directory, archivePath)
			}

			params, err := paramOpts.Parameters()
			if err != nil {
				return err
			}
			return runTrigger(serverOpts, watchOpts, trigger.Request{
				Job:         args[0],
				Parameters:  params,
				ArchivePath: archivePath,
			})
		},
	}

	uploadCmd.PersistentFlags().StringVarP(
		&uploadOpts.Directory, "dir", "d", "", "build context directory to pack and upload",
	)
	uploadCmd.PersistentFlags().StringVar(
		&uploadOpts.Archive, "archive", "", "existing zip archive to upload as-is",
	)
	uploadCmd.PersistentFlags().BoolVar(
		&uploadOpts.Keep, "keep-archive", false, "keep the generated archive after the build",
	)
	uploadCmd.PersistentFlags().BoolVar(
		&uploadOpts.Scaffold, "scaffold", false, "generate an example build context before packing",
	)

	serverOpts = addServerFlags(uploadCmd)
	watchOpts = addWatchFlags(uploadCmd)
	paramOpts = addParamFlags(uploadCmd)
	parentCmd.AddCommand(uploadCmd)
}
