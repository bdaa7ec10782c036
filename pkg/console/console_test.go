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

func TestTail(t *testing.T) {
	tailer := NewTailer(false)

	require.Equal(t, "A\nB\n", tailer.Tail("A\nB\n"))
	require.Equal(t, 4, tailer.Cursor())

	// Cumulative text grows, only the fresh suffix comes back.
	require.Equal(t, "C\n", tailer.Tail("A\nB\nC\n"))
	require.Equal(t, 6, tailer.Cursor())

	// Unchanged text yields nothing and the cursor stays put.
	require.Equal(t, "", tailer.Tail("A\nB\nC\n"))
	require.Equal(t, 6, tailer.Cursor())
}

func TestAnnotateMarkers(t *testing.T) {
	tailer := NewTailer(false)
	notes := tailer.Annotate(
		"[STAGE_START] Build image\n" +
			"[STAGE_END] Build image\n" +
			"[BUILD_SUCCESS] Image published\n" +
			"[BUILD_INFO] Digest recorded\n",
	)
	require.Len(t, notes, 4)
	require.Equal(t, Annotation{Kind: KindStageStart, Message: "Build image"}, notes[0])
	require.Equal(t, Annotation{Kind: KindStageEnd, Message: "Build image"}, notes[1])
	require.Equal(t, Annotation{Kind: KindSuccess, Message: "Image published"}, notes[2])
	require.Equal(t, Annotation{Kind: KindInfo, Message: "Digest recorded"}, notes[3])
}

func TestAnnotatePipelineStage(t *testing.T) {
	tailer := NewTailer(false)
	notes := tailer.Annotate("[Pipeline] stage (Push to registry)\n")
	require.Len(t, notes, 1)
	require.Equal(t, KindStage, notes[0].Kind)
	require.Equal(t, "Push to registry", notes[0].Message)
}

func TestAnnotateStripsANSI(t *testing.T) {
	tailer := NewTailer(false)
	notes := tailer.Annotate("\x1b[32m[STAGE_START] Build\x1b[0m\n")
	require.Len(t, notes, 1)
	require.Equal(t, "Build", notes[0].Message)
}

func TestAnnotateCategories(t *testing.T) {
	tailer := NewTailer(false)
	notes := tailer.Annotate(
		"Building application image\n" +
			"ERROR: compilation failed\n" +
			"digest: sha256:abcd\n" +
			"just a noise line\n",
	)
	require.Len(t, notes, 3)
	require.Equal(t, KindProgress, notes[0].Kind)
	require.Equal(t, KindProblem, notes[1].Kind)
	require.Equal(t, KindImage, notes[2].Kind)
}

func TestAnnotateDeduplicates(t *testing.T) {
	tailer := NewTailer(false)

	notes := tailer.Annotate("Building layer 1\n")
	require.Len(t, notes, 1)

	// The same categorized line again, even in a later chunk, stays
	// silent for the rest of the session.
	notes = tailer.Annotate("Building layer 1\nBuilding layer 2\n")
	require.Len(t, notes, 1)
	require.Equal(t, "Building layer 2", notes[0].Message)

	// Markers are not deduplicated.
	require.Len(t, tailer.Annotate("[BUILD_INFO] x\n[BUILD_INFO] x\n"), 2)
}

func TestAnnotateVerboseDetails(t *testing.T) {
	text := "Step 1/5 : FROM alpine\nSuccessfully tagged app:1.0\nunrelated chatter\n"

	quiet := NewTailer(false)
	require.Empty(t, quiet.Annotate(text))

	verbose := NewTailer(true)
	notes := verbose.Annotate(text)
	require.Len(t, notes, 2)
	for _, note := range notes {
		require.Equal(t, KindDetail, note.Kind)
	}
}

func TestAnnotationString(t *testing.T) {
	require.Equal(
		t, "🔧 Starting stage: Build",
		Annotation{Kind: KindStageStart, Message: "Build"}.String(),
	)
	require.Equal(
		t, "   Step 1/5",
		Annotation{Kind: KindDetail, Message: "Step 1/5"}.String(),
	)
}
