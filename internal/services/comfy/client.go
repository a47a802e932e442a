package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"adsplice/internal/services"
)

const defaultRequestTimeout = 30 * time.Second

// Config captures the runtime settings required to talk to the remote
// workflow executor.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	Retry          Policy
}

// Client wraps the remote workflow executor HTTP API. Every request is
// sent with Connection: close; the executor's reverse proxy setups are
// known to misbehave with keep-alive connections.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      Policy
	sleeper    func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs an executor client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = DefaultPolicy()
	}
	client := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{DisableKeepAlives: true},
		},
		retry: retry,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// UploadAsset transfers a local file into the executor's input store and
// returns the reference under which job graphs can address it. Existing
// files with the same name are overwritten so retried stages reuse the
// slot instead of accumulating copies.
func (c *Client) UploadAsset(ctx context.Context, path, subfolder string) (AssetRef, error) {
	if _, err := os.Stat(path); err != nil {
		return AssetRef{}, fmt.Errorf("%w: upload asset: %s", services.ErrNotFound, path)
	}
	kind := KindForPath(path)
	route, field := kind.uploadEndpoint()

	makeBody := func() (io.Reader, string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("upload asset: read %q: %w", path, err)
		}
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		part, err := writer.CreateFormFile(field, filepath.Base(path))
		if err != nil {
			return nil, "", fmt.Errorf("upload asset: build form: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", fmt.Errorf("upload asset: write form: %w", err)
		}
		if err := writer.WriteField("overwrite", "true"); err != nil {
			return nil, "", fmt.Errorf("upload asset: write form: %w", err)
		}
		if subfolder != "" {
			if err := writer.WriteField("subfolder", subfolder); err != nil {
				return nil, "", fmt.Errorf("upload asset: write form: %w", err)
			}
		}
		if err := writer.Close(); err != nil {
			return nil, "", fmt.Errorf("upload asset: close form: %w", err)
		}
		return &buf, writer.FormDataContentType(), nil
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/upload/"+route, makeBody)
	if err != nil {
		return AssetRef{}, err
	}

	var uploaded struct {
		Name      string `json:"name"`
		Subfolder string `json:"subfolder"`
		Type      string `json:"type"`
	}
	if err := json.Unmarshal(body, &uploaded); err != nil {
		return AssetRef{}, fmt.Errorf("upload asset: decode response: %w", err)
	}
	if uploaded.Name == "" {
		return AssetRef{}, errors.New("upload asset: executor returned no asset name")
	}
	return AssetRef{Name: uploaded.Name, Subfolder: uploaded.Subfolder, Kind: kind}, nil
}

// Submit enqueues a bound job graph. Node-level validation failures are
// surfaced verbatim so template problems can be diagnosed from the error
// alone; they are never retried.
func (c *Client) Submit(ctx context.Context, req JobRequest) (*JobHandle, error) {
	if len(req.Graph) == 0 {
		return nil, fmt.Errorf("%w: submit job: empty graph", services.ErrValidation)
	}
	payload := struct {
		Prompt   Graph  `json:"prompt"`
		ClientID string `json:"client_id"`
	}{Prompt: req.Graph, ClientID: req.CorrelationID}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("submit job: encode payload: %w", err)
	}
	makeBody := func() (io.Reader, string, error) {
		return bytes.NewReader(encoded), "application/json", nil
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/prompt", makeBody)
	if err != nil {
		return nil, err
	}

	var result struct {
		PromptID   string          `json:"prompt_id"`
		NodeErrors json.RawMessage `json:"node_errors"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("submit job: decode response: %w", err)
	}
	if nodeErrors := strings.TrimSpace(string(result.NodeErrors)); nodeErrors != "" && nodeErrors != "{}" && nodeErrors != "null" {
		return nil, fmt.Errorf("%w: submit job: node errors: %s", services.ErrValidation, nodeErrors)
	}
	if result.PromptID == "" {
		return nil, errors.New("submit job: executor returned no job id")
	}
	return &JobHandle{ID: result.PromptID, SubmittedAt: time.Now()}, nil
}

type historyEntry struct {
	Status struct {
		StatusStr string            `json:"status_str"`
		Completed bool              `json:"completed"`
		Messages  []json.RawMessage `json:"messages"`
	} `json:"status"`
	Outputs map[string]map[string]json.RawMessage `json:"outputs"`
}

// Poll observes the current state of a submitted job. An absent history
// entry means the job is still queued. Once a terminal state has been
// observed it is cached on the handle, so a later poll that races the
// executor's history eviction can never un-finish a job.
func (c *Client) Poll(ctx context.Context, handle *JobHandle) (JobStatus, error) {
	if handle == nil || handle.ID == "" {
		return JobStatus{}, errors.New("poll job: nil handle")
	}
	if cached, ok := handle.cachedTerminal(); ok {
		return cached, nil
	}

	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/history/"+url.PathEscape(handle.ID), nil)
	if err != nil {
		return JobStatus{}, err
	}

	var history map[string]historyEntry
	if err := json.Unmarshal(body, &history); err != nil {
		return JobStatus{}, fmt.Errorf("poll job: decode history: %w", err)
	}
	entry, ok := history[handle.ID]
	if !ok {
		return JobStatus{State: StatePending}, nil
	}

	var status JobStatus
	switch entry.Status.StatusStr {
	case "success":
		status = JobStatus{State: StateSucceeded, Outputs: collectOutputs(entry.Outputs)}
	case "error":
		status = JobStatus{State: StateFailed, Messages: renderMessages(entry.Status.Messages)}
	default:
		status = JobStatus{State: StateRunning}
	}
	handle.recordTerminal(status)
	return status, nil
}

// WaitUntilTerminal polls until the job reaches a terminal state or the
// wall-clock timeout elapses. Between polls it sleeps exactly
// pollInterval, honoring context cancellation.
func (c *Client) WaitUntilTerminal(ctx context.Context, handle *JobHandle, timeout, pollInterval time.Duration) (JobStatus, error) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	start := time.Now()
	for {
		status, err := c.Poll(ctx, handle)
		if err != nil {
			return JobStatus{}, err
		}
		if status.State.Terminal() {
			return status, nil
		}
		if elapsed := time.Since(start); elapsed >= timeout {
			return JobStatus{}, fmt.Errorf("%w: job %s not finished after %s (limit %s)", services.ErrTimeout, handle.ID, elapsed.Round(time.Millisecond), timeout)
		}
		if err := c.sleep(ctx, pollInterval); err != nil {
			return JobStatus{}, err
		}
	}
}

// FetchAsset downloads a generated asset into destPath, creating parent
// directories as needed.
func (c *Client) FetchAsset(ctx context.Context, ref AssetRef, destPath string) error {
	if ref.Name == "" {
		return fmt.Errorf("%w: fetch asset: empty asset name", services.ErrValidation)
	}
	query := url.Values{}
	query.Set("filename", ref.Name)
	query.Set("type", "output")
	if ref.Subfolder != "" {
		query.Set("subfolder", ref.Subfolder)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("fetch asset: create directory: %w", err)
	}

	endpoint := c.baseURL + "/view?" + query.Encode()
	attempts := c.retry.attempts()
	for attempt := 1; ; attempt++ {
		err := c.fetchOnce(ctx, endpoint, destPath)
		if err == nil {
			return nil
		}
		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return err
		}
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
}

func (c *Client) fetchOnce(ctx context.Context, endpoint, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("fetch asset: new request: %w", err)
	}
	req.Header.Set("Connection", "close")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executor request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return classifyStatus(resp, body)
	}

	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("fetch asset: create %q: %w", destPath, err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(destPath)
		return fmt.Errorf("fetch asset: download: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("fetch asset: close %q: %w", destPath, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, makeBody func() (io.Reader, string, error)) ([]byte, error) {
	attempts := c.retry.attempts()
	for attempt := 1; ; attempt++ {
		body, err := c.doOnce(ctx, method, endpoint, makeBody)
		if err == nil {
			return body, nil
		}
		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return nil, err
		}
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
	}
}

func (c *Client) doOnce(ctx context.Context, method, endpoint string, makeBody func() (io.Reader, string, error)) ([]byte, error) {
	var reader io.Reader
	contentType := ""
	if makeBody != nil {
		var err error
		reader, contentType, err = makeBody()
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("executor request: new request: %w", err)
	}
	req.Header.Set("Connection", "close")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executor request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("executor request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, classifyStatus(resp, body)
	}
	return body, nil
}

// classifyStatus maps HTTP failures onto the error taxonomy: 5xx stays
// retryable, 404 marks a missing resource, and every other 4xx is a
// validation failure carrying the server's message.
func classifyStatus(resp *http.Response, body []byte) error {
	trimmed := strings.TrimSpace(string(body))
	if resp.StatusCode >= http.StatusInternalServerError {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return &httpStatusError{StatusCode: resp.StatusCode, Body: trimmed, RetryAfter: retryAfter}
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: executor request: http 404: %s", services.ErrNotFound, trimmed)
	}
	return fmt.Errorf("%w: executor request: http %d: %s", services.ErrValidation, resp.StatusCode, trimmed)
}

type outputAsset struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// collectOutputs flattens per-node output groups into a single group map.
// Nodes are visited in sorted order so the first asset of a group is
// deterministic across polls.
func collectOutputs(outputs map[string]map[string]json.RawMessage) map[string][]AssetRef {
	if len(outputs) == 0 {
		return nil
	}
	nodeIDs := make([]string, 0, len(outputs))
	for id := range outputs {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	grouped := make(map[string][]AssetRef)
	for _, id := range nodeIDs {
		for group, raw := range outputs[id] {
			var assets []outputAsset
			if err := json.Unmarshal(raw, &assets); err != nil {
				// Non-asset output groups (progress text, flags) are skipped.
				continue
			}
			for _, asset := range assets {
				if asset.Filename == "" {
					continue
				}
				grouped[group] = append(grouped[group], AssetRef{
					Name:      asset.Filename,
					Subfolder: asset.Subfolder,
					Kind:      kindForGroup(group),
				})
			}
		}
	}
	if len(grouped) == 0 {
		return nil
	}
	return grouped
}

// kindForGroup maps the executor's output labels to asset kinds. Video
// combine nodes historically label their files "gifs" even though they
// produce mp4 output.
func kindForGroup(group string) AssetKind {
	switch group {
	case "audio":
		return AssetAudio
	case "gifs", "videos":
		return AssetVideo
	default:
		return AssetImage
	}
}

func renderMessages(raw []json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	messages := make([]string, 0, len(raw))
	for _, entry := range raw {
		if text := strings.TrimSpace(string(entry)); text != "" {
			messages = append(messages, text)
		}
	}
	return messages
}
