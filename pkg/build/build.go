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
	"fmt"
	"time"
)

// Terminal results reported by Jenkins once a build stops running.
const (
	ResultSuccess = "SUCCESS"
	ResultFailure = "FAILURE"
	ResultAborted = "ABORTED"
	ResultUnknown = "UNKNOWN"
)

// Build identifies one concrete execution of a job. Once a queue
// handle resolves to a build number the pair never changes.
type Build struct {
	Job    string
	Number int
}

func (b Build) String() string {
	return fmt.Sprintf("%s #%d", b.Job, b.Number)
}

// Status is a snapshot of a build's state as reported by the server.
// The snapshot only mutates while Building is true; the first
// non-building observation is final.
type Status struct {
	Building  bool
	Result    string
	Duration  time.Duration
	URL       string
	Timestamp time.Time
}

// Terminal normalizes the build result once a build is no longer
// running. Anything the server did not label is reported as UNKNOWN.
func (s *Status) Terminal() string {
	if s.Building {
		return ""
	}
	switch s.Result {
	case ResultSuccess, ResultFailure, ResultAborted:
		return s.Result
	default:
		return ResultUnknown
	}
}
