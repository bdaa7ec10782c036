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

package jenkins

// QueueItem is the server-side record of a build request before an
// executor picks it up. Executable stays null while the request is
// queued and points to the assigned build once one starts.
type QueueItem struct {
	ID         int64       `json:"id"`
	Blocked    bool        `json:"blocked"`
	Stuck      bool        `json:"stuck"`
	Why        string      `json:"why"`
	Executable *Executable `json:"executable"`
}

type Executable struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// Job is one entry of the server's job listing.
type Job struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Color string `json:"color"`
}

// JobInfo is the subset of the job record metate cares about.
type JobInfo struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Buildable   bool      `json:"buildable"`
	InQueue     bool      `json:"inQueue"`
	LastBuild   *BuildRef `json:"lastBuild"`
	NextBuildNo int       `json:"nextBuildNumber"`
}

type BuildRef struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// buildInfo mirrors /job/{name}/{build}/api/json. Result is null
// while the build runs, which decodes as the empty string.
type buildInfo struct {
	Building  bool            `json:"building"`
	Result    string          `json:"result"`
	Duration  int64           `json:"duration"`
	Timestamp int64           `json:"timestamp"`
	URL       string          `json:"url"`
	Artifacts []BuildArtifact `json:"artifacts"`
}

// BuildArtifact is a file archived by a finished build.
type BuildArtifact struct {
	FileName     string `json:"fileName"`
	RelativePath string `json:"relativePath"`
}

// queueListing mirrors /queue/api/json.
type queueListing struct {
	Items []struct {
		ID   int64 `json:"id"`
		Task struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"task"`
	} `json:"items"`
}

// jobListing mirrors the jobs array of /api/json.
type jobListing struct {
	Jobs []Job `json:"jobs"`
}

type whoAmI struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
}
