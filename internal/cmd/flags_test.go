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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParamOptionsParameters(t *testing.T) {
	opts := &paramOptions{
		AppName:    "app",
		AppVersion: "1.2.3",
		Platforms:  "linux/amd64",
		Extra:      []string{"DEPLOY_ENV=staging"},
	}

	params, err := opts.Parameters()
	require.NoError(t, err)
	require.Equal(t, "app", params["APP_NAME"])
	require.Equal(t, "1.2.3", params["APP_VERSION"])
	require.Equal(t, "linux/amd64", params["BUILD_PLATFORMS"])
	require.Equal(t, "staging", params["DEPLOY_ENV"])
	require.NotEmpty(t, params["BUILD_UNIQUE_ID"])
	require.NotContains(t, params, "BUILD_CONTEXT")
}

func TestParamOptionsMultiArch(t *testing.T) {
	opts := &paramOptions{Platforms: "linux/amd64", MultiArch: true}
	params, err := opts.Parameters()
	require.NoError(t, err)
	require.Equal(t, "linux/amd64,linux/arm64", params["BUILD_PLATFORMS"])
}

func TestParamOptionsUniqueIDStable(t *testing.T) {
	opts := &paramOptions{UniqueID: "release-42"}
	params, err := opts.Parameters()
	require.NoError(t, err)
	require.Equal(t, "release-42", params["BUILD_UNIQUE_ID"])
}

func TestParamOptionsBadExtra(t *testing.T) {
	for _, bad := range []string{"NOVALUE", "=value"} {
		opts := &paramOptions{Extra: []string{bad}}
		_, err := opts.Parameters()
		require.Error(t, err, bad)
	}
}

func TestServerOptionsConfig(t *testing.T) {
	opts := &serverOptions{URL: "http://ci.example.com/", Username: "admin", APIToken: "tok"}
	cfg, err := opts.Config()
	require.NoError(t, err)
	require.Equal(t, "http://ci.example.com/", cfg.URL)
	require.Equal(t, "admin", cfg.Username)
	require.Equal(t, "tok", cfg.APIToken)
}

func TestServerOptionsConfigEnv(t *testing.T) {
	// Hyphenated settings keys map to underscored env names.
	t.Setenv("METATE_API_TOKEN", "env-token")
	t.Setenv("METATE_SERVER", "http://env.example.com")

	opts := &serverOptions{URL: "http://flag.example.com", Username: "admin"}
	cfg, err := opts.Config()
	require.NoError(t, err)
	require.Equal(t, "http://env.example.com", cfg.URL)
	require.Equal(t, "admin", cfg.Username)
	require.Equal(t, "env-token", cfg.APIToken)
}

func TestServerOptionsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metate.yaml")
	require.NoError(t, os.WriteFile(
		path, []byte("server: http://file.example.com\nusername: carol\n"), 0o600,
	))

	opts := &serverOptions{
		URL:        "http://flag.example.com",
		Username:   "admin",
		APIToken:   "tok",
		ConfigFile: path,
	}
	cfg, err := opts.Config()
	require.NoError(t, err)
	// File values override flags; keys the file omits keep theirs.
	require.Equal(t, "http://file.example.com", cfg.URL)
	require.Equal(t, "carol", cfg.Username)
	require.Equal(t, "tok", cfg.APIToken)
}

func TestServerOptionsConfigFileMissing(t *testing.T) {
	opts := &serverOptions{
		URL:        "http://flag.example.com",
		ConfigFile: filepath.Join(t.TempDir(), "nope.yaml"),
	}
	_, err := opts.Config()
	require.Error(t, err)
}
