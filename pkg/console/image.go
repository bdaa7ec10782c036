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
	"regexp"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/sirupsen/logrus"
)

// ansiEscape matches CSI and OSC style terminal escape sequences.
var ansiEscape = regexp.MustCompile(`\x1B(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)

// StripANSI removes terminal escape sequences from console text.
func StripANSI(text string) string {
	return ansiEscape.ReplaceAllString(text, "")
}

// Line prefixes the pipeline prints when publishing an image.
const (
	prefixRegistry = "Registry:"
	prefixProject  = "Project:"
	prefixImageTag = "Image:"
	prefixPushed   = "Pushed:"
	prefixDigest   = "digest:"
	prefixSHA      = "sha256:"
)

// ImageInfo holds image metadata scraped from a build's console
// output. Extraction is best effort: any field may be empty.
type ImageInfo struct {
	Registry string
	Project  string
	Tag      string
	Image    string
	Digest   string
}

func (i ImageInfo) Empty() bool {
	return i == ImageInfo{}
}

// ExtractImageInfo scans the full console text for keyword-prefixed
// lines describing the published image. The first digest found wins.
// When the pushed reference parses as a valid image name it is
// normalized and its registry recorded.
func ExtractImageInfo(consoleText string) ImageInfo {
	info := ImageInfo{}
	for _, line := range strings.Split(consoleText, "\n") {
		clean := strings.TrimSpace(StripANSI(line))
		switch {
		case strings.Contains(clean, prefixRegistry):
			info.Registry = suffixAfter(clean, prefixRegistry)
		case strings.Contains(clean, prefixProject):
			info.Project = suffixAfter(clean, prefixProject)
		case strings.Contains(clean, prefixPushed):
			info.Image = suffixAfter(clean, prefixPushed)
		case strings.Contains(clean, prefixImageTag):
			info.Tag = suffixAfter(clean, prefixImageTag)
		case strings.Contains(clean, prefixDigest) || strings.Contains(clean, prefixSHA):
			if info.Digest == "" {
				info.Digest = clean
			}
		}
	}

	if info.Image != "" {
		ref, err := name.ParseReference(info.Image)
		if err != nil {
			logrus.Debugf("pushed image %q is not a valid reference: %v", info.Image, err)
		} else {
			info.Image = ref.Name()
			if info.Registry == "" {
				info.Registry = ref.Context().RegistryStr()
			}
		}
	}
	return info
}

func suffixAfter(line, prefix string) string {
	parts := strings.SplitN(line, prefix, 2)
	return strings.TrimSpace(parts[len(parts)-1])
}
