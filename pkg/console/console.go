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
	"fmt"
	"strings"
)

// Structured markers the pipeline emits into its console output.
const (
	markerStageStart   = "[STAGE_START]"
	markerStageEnd     = "[STAGE_END]"
	markerBuildSuccess = "[BUILD_SUCCESS]"
	markerBuildInfo    = "[BUILD_INFO]"
)

// Annotation kinds.
const (
	KindStageStart = "stage-start"
	KindStageEnd   = "stage-end"
	KindSuccess    = "success"
	KindInfo       = "info"
	KindStage      = "stage"
	KindProgress   = "progress"
	KindProblem    = "problem"
	KindImage      = "image"
	KindDetail     = "detail"
)

// progressKeywords surface build progress lines even when not
// running verbose. Matched case-insensitively.
var progressKeywords = []string{"building", "pushing"}

// problemKeywords surface error and warning lines.
var problemKeywords = []string{"error:", "warning:", "build failed"}

// imageKeywords surface registry, image and digest information.
var imageKeywords = []string{"registry.", "harbor.", "sha256:", "digest:"}

// detailKeywords is the secondary allowlist shown only in verbose
// mode, mostly container build steps.
var detailKeywords = []string{
	"Step ",
	"Successfully built",
	"Successfully tagged",
	"Sending build context",
	"FROM ",
	"RUN ",
	"COPY ",
	"WORKDIR ",
	"EXPOSE ",
	"CMD ",
}

// Annotation is a human-readable note derived from console text.
// Annotations are purely informational: nothing downstream makes
// control flow decisions based on them.
type Annotation struct {
	Kind    string
	Message string
}

func (a Annotation) String() string {
	switch a.Kind {
	case KindStageStart:
		return fmt.Sprintf("🔧 Starting stage: %s", a.Message)
	case KindStageEnd:
		return fmt.Sprintf("✅ Finished stage: %s", a.Message)
	case KindSuccess:
		return fmt.Sprintf("🎉 %s", a.Message)
	case KindInfo:
		return fmt.Sprintf("📋 %s", a.Message)
	case KindStage:
		return fmt.Sprintf("🔧 Pipeline stage: %s", a.Message)
	case KindDetail:
		return "   " + a.Message
	default:
		return "📝 " + a.Message
	}
}

// Tailer incrementally consumes the cumulative console output of a
// single build. The cursor is a byte offset into that stream and
// only ever advances; a Tailer must not be shared across builds.
type Tailer struct {
	cursor  int
	verbose bool
	seen    map[string]struct{}
}

func NewTailer(verbose bool) *Tailer {
	return &Tailer{
		verbose: verbose,
		seen:    map[string]struct{}{},
	}
}

// Cursor returns the current byte offset.
func (t *Tailer) Cursor() int {
	return t.cursor
}

// Tail returns the suffix of the cumulative console text beyond the
// cursor and advances the cursor to the new length.
func (t *Tailer) Tail(console string) string {
	if len(console) <= t.cursor {
		return ""
	}
	fresh := console[t.cursor:]
	t.cursor = len(console)
	return fresh
}

// Annotate turns a chunk of fresh console text into annotations.
// Keyword-category lines are deduplicated per monitoring session so
// a repeated progress line is only surfaced once.
func (t *Tailer) Annotate(text string) []Annotation {
	notes := []Annotation{}
	for _, line := range strings.Split(text, "\n") {
		clean := strings.TrimSpace(StripANSI(line))
		if clean == "" {
			continue
		}

		if note, ok := markerAnnotation(clean); ok {
			notes = append(notes, note)
			continue
		}

		if stage, ok := pipelineStage(clean); ok {
			notes = append(notes, Annotation{Kind: KindStage, Message: stage})
			continue
		}

		if kind, ok := categorize(clean); ok {
			if t.once(kind, clean) {
				notes = append(notes, Annotation{Kind: kind, Message: clean})
			}
			continue
		}

		if t.verbose && containsAny(clean, detailKeywords) {
			notes = append(notes, Annotation{Kind: KindDetail, Message: clean})
		}
	}
	return notes
}

// once records a category/value pair and reports whether it was new.
func (t *Tailer) once(kind, value string) bool {
	key := kind + "\x00" + value
	if _, ok := t.seen[key]; ok {
		return false
	}
	t.seen[key] = struct{}{}
	return true
}

func markerAnnotation(line string) (Annotation, bool) {
	for marker, kind := range map[string]string{
		markerStageStart:   KindStageStart,
		markerStageEnd:     KindStageEnd,
		markerBuildSuccess: KindSuccess,
		markerBuildInfo:    KindInfo,
	} {
		if strings.Contains(line, marker) {
			parts := strings.SplitN(line, marker, 2)
			return Annotation{
				Kind:    kind,
				Message: strings.TrimSpace(parts[len(parts)-1]),
			}, true
		}
	}
	return Annotation{}, false
}

// pipelineStage extracts the stage name from Jenkins pipeline
// bookkeeping lines like "[Pipeline] stage (Build image)".
func pipelineStage(line string) (string, bool) {
	if !strings.Contains(line, "[Pipeline] stage") {
		return "", false
	}
	open := strings.LastIndex(line, "(")
	end := strings.LastIndex(line, ")")
	if open == -1 || end == -1 || end < open {
		return "", false
	}
	return line[open+1 : end], true
}

func categorize(line string) (string, bool) {
	lower := strings.ToLower(line)
	switch {
	case containsAny(lower, problemKeywords):
		return KindProblem, true
	case containsAny(lower, imageKeywords):
		return KindImage, true
	case containsAny(lower, progressKeywords):
		return KindProgress, true
	}
	return "", false
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
