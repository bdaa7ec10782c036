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

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/metate-build/metate/pkg/build"
)

const defaultRequestTimeout = 300 * time.Second

var (
	// ErrQueueItemGone signals the queue entry was reclaimed by the
	// server, usually because the build started long enough ago for
	// the record to expire.
	ErrQueueItemGone = errors.New("queue item no longer exists")

	// ErrNoQueueHandle signals the build was accepted but the
	// submission response carried no usable queue item reference.
	ErrNoQueueHandle = errors.New("no queue handle in submission response")
)

var queueItemEx = regexp.MustCompile(`/queue/item/(\d+)/?`)

// Config carries everything needed to talk to one Jenkins server.
// Credentials are passed through to HTTP basic auth unchanged.
type Config struct {
	URL      string
	Username string
	APIToken string
	Timeout  time.Duration
}

// Client is a minimal client for the parts of the Jenkins REST API
// that triggering and tracking builds requires.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	cfg.URL = strings.TrimSuffix(cfg.URL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// ServerURL returns the configured server address without a
// trailing slash.
func (c *Client) ServerURL() string {
	return c.cfg.URL
}

func (c *Client) apiURL(pathFmt string, args ...any) string {
	return c.cfg.URL + fmt.Sprintf(pathFmt, args...)
}

func (c *Client) newRequest(ctx context.Context, method, urlString string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlString, body)
	if err != nil {
		return nil, fmt.Errorf("creating http request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.APIToken)
	return req, nil
}

// apiGet performs an authenticated GET and decodes the JSON body
// into v when the server answers 200.
func (c *Client) apiGet(ctx context.Context, urlString string, v any) (int, error) {
	logrus.Debugf("JenkinsAPI[GET]: %s", urlString)
	req, err := c.newRequest(ctx, http.MethodGet, urlString, nil)
	if err != nil {
		return 0, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("executing http request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return res.StatusCode, fmt.Errorf("http error %d from %s", res.StatusCode, urlString)
	}

	if v == nil {
		return res.StatusCode, nil
	}

	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return res.StatusCode, fmt.Errorf("decoding server response: %w", err)
	}
	return res.StatusCode, nil
}

// WhoAmI checks connectivity and credentials, returning the full
// name of the authenticated user.
func (c *Client) WhoAmI(ctx context.Context) (string, error) {
	me := &whoAmI{}
	if _, err := c.apiGet(ctx, c.apiURL("/me/api/json"), me); err != nil {
		return "", fmt.Errorf("querying authenticated user: %w", err)
	}
	return me.FullName, nil
}

// JobExists probes the job record. A 404 means the job is not
// defined on the server.
func (c *Client) JobExists(ctx context.Context, job string) (bool, error) {
	status, err := c.apiGet(ctx, c.apiURL("/job/%s/api/json", url.PathEscape(job)), nil)
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking job %s: %w", job, err)
	}
	return true, nil
}

// JobInfo fetches the job record.
func (c *Client) JobInfo(ctx context.Context, job string) (*JobInfo, error) {
	info := &JobInfo{}
	if _, err := c.apiGet(ctx, c.apiURL("/job/%s/api/json", url.PathEscape(job)), info); err != nil {
		return nil, fmt.Errorf("fetching job info: %w", err)
	}
	return info, nil
}

// LastBuildNumber returns the number of the job's most recent build,
// or zero when the job has never built.
func (c *Client) LastBuildNumber(ctx context.Context, job string) (int, error) {
	info, err := c.JobInfo(ctx, job)
	if err != nil {
		return 0, err
	}
	if info.LastBuild == nil {
		return 0, nil
	}
	return info.LastBuild.Number, nil
}

// ListJobs returns the jobs visible at the server root.
func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	listing := &jobListing{}
	if _, err := c.apiGet(ctx, c.apiURL("/api/json"), listing); err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return listing.Jobs, nil
}

// QueueItem fetches one entry of the build queue. Returns
// ErrQueueItemGone once the server reclaims the record.
func (c *Client) QueueItem(ctx context.Context, id int64) (*QueueItem, error) {
	item := &QueueItem{}
	status, err := c.apiGet(ctx, c.apiURL("/queue/item/%d/api/json", id), item)
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("fetching queue item %d: %w", id, ErrQueueItemGone)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching queue item %d: %w", id, err)
	}
	return item, nil
}

// JobQueued reports whether the job has an entry in the server's
// pending queue listing.
func (c *Client) JobQueued(ctx context.Context, job string) (bool, error) {
	listing := &queueListing{}
	if _, err := c.apiGet(ctx, c.apiURL("/queue/api/json"), listing); err != nil {
		return false, fmt.Errorf("fetching queue listing: %w", err)
	}
	for _, item := range listing.Items {
		if item.Task.Name == job {
			return true, nil
		}
	}
	return false, nil
}

// BuildStatus fetches a snapshot of the build state.
func (c *Client) BuildStatus(ctx context.Context, b build.Build) (*build.Status, error) {
	info := &buildInfo{}
	urlString := c.apiURL("/job/%s/%d/api/json", url.PathEscape(b.Job), b.Number)
	if _, err := c.apiGet(ctx, urlString, info); err != nil {
		return nil, fmt.Errorf("fetching status of %s: %w", b, err)
	}
	return &build.Status{
		Building:  info.Building,
		Result:    info.Result,
		Duration:  time.Duration(info.Duration) * time.Millisecond,
		URL:       info.URL,
		Timestamp: time.UnixMilli(info.Timestamp),
	}, nil
}

// BuildArtifacts lists the files a finished build archived.
func (c *Client) BuildArtifacts(ctx context.Context, b build.Build) ([]BuildArtifact, error) {
	info := &buildInfo{}
	urlString := c.apiURL("/job/%s/%d/api/json", url.PathEscape(b.Job), b.Number)
	if _, err := c.apiGet(ctx, urlString, info); err != nil {
		return nil, fmt.Errorf("fetching artifacts of %s: %w", b, err)
	}
	return info.Artifacts, nil
}

// ConsoleText fetches the cumulative console output of a build.
func (c *Client) ConsoleText(ctx context.Context, b build.Build) (string, error) {
	urlString := c.apiURL("/job/%s/%d/logText/progressiveText", url.PathEscape(b.Job), b.Number)
	req, err := c.newRequest(ctx, http.MethodGet, urlString, nil)
	if err != nil {
		return "", err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching console text: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http error %d fetching console text", res.StatusCode)
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("reading console text: %w", err)
	}
	return string(data), nil
}

// Artifact is a local payload streamed to the job as a file
// parameter when triggering a build.
type Artifact struct {
	Name      string
	FieldName string
	Data      io.Reader
}

// Trigger submits a build request. String parameters travel as form
// fields, the artifact (when present) as a multipart file part. On
// 201 the queue item number is read from the Location header;
// ErrNoQueueHandle is returned when the header is missing or does
// not point at a queue item.
func (c *Client) Trigger(ctx context.Context, job string, params map[string]string, artifact *Artifact) (int64, error) {
	endpoint := c.apiURL("/job/%s/build", url.PathEscape(job))
	if len(params) > 0 || artifact != nil {
		endpoint = c.apiURL("/job/%s/buildWithParameters", url.PathEscape(job))
	}

	var body io.Reader
	contentType := ""
	switch {
	case artifact != nil:
		pr, pw := io.Pipe()
		writer := multipart.NewWriter(pw)
		contentType = writer.FormDataContentType()
		go func() {
			pw.CloseWithError(writeMultipart(writer, params, artifact))
		}()
		body = pr
	case len(params) > 0:
		form := url.Values{}
		for k, v := range params {
			form.Set(k, v)
		}
		body = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := c.newRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return 0, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	logrus.Debugf("JenkinsAPI[POST]: %s", endpoint)
	res, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("submitting build request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated && res.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		return 0, fmt.Errorf(
			"build submission failed with http %d: %s", res.StatusCode, strings.TrimSpace(string(data)),
		)
	}

	location := res.Header.Get("Location")
	if location == "" {
		return 0, ErrNoQueueHandle
	}
	match := queueItemEx.FindStringSubmatch(location)
	if match == nil {
		logrus.Warnf("Location header %q does not reference a queue item", location)
		return 0, ErrNoQueueHandle
	}
	id, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, ErrNoQueueHandle
	}
	return id, nil
}

func writeMultipart(writer *multipart.Writer, params map[string]string, artifact *Artifact) error {
	fieldName := artifact.FieldName
	if fieldName == "" {
		fieldName = "BUILD_ARCHIVE"
	}
	part, err := writer.CreateFormFile(fieldName, artifact.Name)
	if err != nil {
		return fmt.Errorf("creating multipart file part: %w", err)
	}
	if _, err := io.Copy(part, artifact.Data); err != nil {
		return fmt.Errorf("streaming artifact payload: %w", err)
	}
	for k, v := range params {
		if err := writer.WriteField(k, v); err != nil {
			return fmt.Errorf("writing form field %s: %w", k, err)
		}
	}
	return writer.Close()
}
