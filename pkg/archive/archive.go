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

package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Create zips the source directory into "<dirname>.zip" next to the
// working directory and returns the archive path. Entries keep the
// directory name as their top-level path component so the job can
// unpack into a named build context.
func Create(sourceDir string) (string, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return "", fmt.Errorf("source directory %s: %w", sourceDir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("source path %s is not a directory", sourceDir)
	}

	archivePath := filepath.Base(filepath.Clean(sourceDir)) + ".zip"
	logrus.Infof("📦 Creating build archive %s from %s", archivePath, sourceDir)

	f, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("creating archive file: %w", err)
	}
	defer f.Close()

	writer := zip.NewWriter(f)
	parent := filepath.Dir(filepath.Clean(sourceDir))
	err = filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return fmt.Errorf("computing archive entry name: %w", err)
		}
		entry, err := writer.Create(filepath.ToSlash(rel))
		if err != nil {
			return fmt.Errorf("creating archive entry %s: %w", rel, err)
		}
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer file.Close()
		if _, err := io.Copy(entry, file); err != nil {
			return fmt.Errorf("writing archive entry %s: %w", rel, err)
		}
		return nil
	})
	if err != nil {
		writer.Close()
		return "", fmt.Errorf("walking source directory: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finishing archive: %w", err)
	}

	if stat, err := os.Stat(archivePath); err == nil {
		logrus.Infof("✅ Archive created (%d bytes)", stat.Size())
	}
	return archivePath, nil
}

// Remove deletes a temporary archive. Best effort: a leftover file
// never fails the build.
func Remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil {
		logrus.Debugf("Could not remove archive %s: %v", path, err)
		return
	}
	logrus.Infof("🧹 Removed temporary archive %s", path)
}

const exampleDockerfile = `FROM alpine:latest

RUN apk add --no-cache curl

WORKDIR /app

COPY . .

RUN echo "Platform: $(uname -m)" > /app/platform.txt

CMD ["/bin/sh", "-c", "cat /app/platform.txt"]
`

const exampleApp = `#!/bin/sh
echo "Example build application"
echo "Platform: $(uname -m)"
echo "Build time: $(date)"
`

const exampleReadme = `# Example build context

A minimal Docker build context used to exercise an upload build.
`

// ScaffoldExample writes a minimal buildable context (Dockerfile,
// app script, readme) into dir. Returns an error if the directory
// already exists.
func ScaffoldExample(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("directory %s already exists", dir)
	}
	if err := os.MkdirAll(dir, os.FileMode(0o755)); err != nil {
		return fmt.Errorf("creating example directory: %w", err)
	}
	for file, content := range map[string]string{
		"Dockerfile": exampleDockerfile,
		"app.sh":     exampleApp,
		"README.md":  exampleReadme,
	} {
		if err := os.WriteFile(
			filepath.Join(dir, file), []byte(content), os.FileMode(0o644),
		); err != nil {
			return fmt.Errorf("writing %s: %w", file, err)
		}
	}
	logrus.Infof("📁 Created example build context in %s", strings.TrimSuffix(dir, "/"))
	return nil
}
