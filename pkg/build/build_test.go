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

package build

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildString(t *testing.T) {
	require.Equal(t, "ci-build #7", Build{Job: "ci-build", Number: 7}.String())
}

func TestStatusTerminal(t *testing.T) {
	for _, tc := range []struct {
		name     string
		status   Status
		expected string
	}{
		{"running", Status{Building: true}, ""},
		{"running with stale result", Status{Building: true, Result: ResultSuccess}, ""},
		{"success", Status{Result: ResultSuccess}, ResultSuccess},
		{"failure", Status{Result: ResultFailure}, ResultFailure},
		{"aborted", Status{Result: ResultAborted}, ResultAborted},
		{"unstable maps to unknown", Status{Result: "UNSTABLE"}, ResultUnknown},
		{"missing result maps to unknown", Status{}, ResultUnknown},
	} {
		require.Equal(t, tc.expected, tc.status.Terminal(), tc.name)
	}
}
