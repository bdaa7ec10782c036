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

package console

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripANSI(t *testing.T) {
	require.Equal(t, "OK", StripANSI("\x1b[1;32mOK\x1b[0m"))
	require.Equal(t, "plain", StripANSI("plain"))
}

func TestExtractImageInfo(t *testing.T) {
	consoleText := `[BUILD_INFO] publishing image
Project: team
Pushed: harbor.example.com/team/app:1.0.0
digest: sha256:1111111111111111111111111111111111111111111111111111111111111111
digest: sha256:2222222222222222222222222222222222222222222222222222222222222222
Finished: SUCCESS`

	info := ExtractImageInfo(consoleText)
	require.False(t, info.Empty())
	require.Equal(t, "team", info.Project)
	require.Equal(t, "harbor.example.com/team/app:1.0.0", info.Image)
	// The registry comes from parsing the pushed reference.
	require.Equal(t, "harbor.example.com", info.Registry)
	// The first digest line wins.
	require.Contains(t, info.Digest, "sha256:11111111")
}

func TestExtractImageInfoExplicitRegistry(t *testing.T) {
	info := ExtractImageInfo("Registry: registry.internal:5000\nImage: app:2.0\n")
	require.Equal(t, "registry.internal:5000", info.Registry)
	require.Equal(t, "app:2.0", info.Tag)
}

func TestExtractImageInfoEmpty(t *testing.T) {
	info := ExtractImageInfo("Started\nCompiling\nFinished: SUCCESS\n")
	require.True(t, info.Empty())
}
