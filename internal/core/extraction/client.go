package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/yuchen-w/papyra/internal/core"
)

// Config tunes the protocol client.
//
// MaxRetries and RetryDelay govern the submit phase only; the delay
// grows linearly (attempt x RetryDelay). PollInterval and MaxPollTime
// bound the poll loop.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	PollInterval   time.Duration
	MaxPollTime    time.Duration
}

// Client drives the remote extraction service's three-phase job
// protocol: request an upload target and transfer the bytes, poll the
// job until it settles, then download the result archive and pull the
// text artifact out of it.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxPollTime <= 0 {
		cfg.MaxPollTime = 10 * time.Minute
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

var _ core.Extractor = (*Client)(nil)

func (c *Client) String() string {
	return "remote extraction service at " + c.cfg.BaseURL
}

// Extract runs the full protocol for one document and returns the raw
// extracted text (markdown-like).
func (c *Client) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	job, err := c.submitWithRetry(ctx, filename, data)
	if err != nil {
		return "", err
	}
	log.Printf("extraction: submitted | file=%s job=%s", filename, job)

	st, err := c.waitForResult(ctx, job)
	if err != nil {
		return "", err
	}
	if st.State == StateFailed {
		return "", terminalErr("extraction job failed: %s", st.ErrMsg)
	}

	text, err := c.retrieve(ctx, st.ResultURL)
	if err != nil {
		return "", err
	}
	log.Printf("extraction: retrieved | file=%s chars=%d", filename, len(text))
	return text, nil
}

// -- phase 1: submit ---------------------------------------------------------

type uploadTargetRequest struct {
	Files []struct {
		Name string `json:"name"`
	} `json:"files"`
}

type uploadTargetResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		BatchID  string   `json:"batch_id"`
		FileURLs []string `json:"file_urls"`
	} `json:"data"`
}

// submitWithRetry wraps the submit phase in a bounded retry loop with a
// linearly increasing delay. A 4xx rejection is terminal and returned
// immediately.
func (c *Client) submitWithRetry(ctx context.Context, filename string, data []byte) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		jobID, err := c.submit(ctx, filename, data)
		if err == nil {
			return jobID, nil
		}
		if !IsRetryable(err) {
			return "", err
		}
		lastErr = err
		log.Printf("extraction: submit attempt %d/%d failed: %v", attempt, c.cfg.MaxRetries, err)

		if attempt == c.cfg.MaxRetries {
			break
		}
		timer := time.NewTimer(time.Duration(attempt) * c.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", terminalErr("submit failed after %d attempts: %v", c.cfg.MaxRetries, lastErr)
}

// submit requests an upload target and transfers the file bytes to it.
func (c *Client) submit(ctx context.Context, filename string, data []byte) (string, error) {
	var reqBody uploadTargetRequest
	reqBody.Files = append(reqBody.Files, struct {
		Name string `json:"name"`
	}{Name: filename})

	payload, err := json.Marshal(&reqBody)
	if err != nil {
		return "", terminalErr("marshal upload request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/file-urls/batch", bytes.NewReader(payload))
	if err != nil {
		return "", terminalErr("build upload request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", transientErr("request upload target: %v", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "request upload target"); err != nil {
		return "", err
	}

	var target uploadTargetResponse
	if err := json.NewDecoder(resp.Body).Decode(&target); err != nil {
		return "", transientErr("decode upload target: %v", err)
	}
	if target.Code != 0 {
		return "", terminalErr("upload target rejected: %s", target.Msg)
	}
	if target.Data.BatchID == "" || len(target.Data.FileURLs) == 0 {
		return "", terminalErr("upload target response missing job id or url")
	}

	if err := c.uploadBytes(ctx, target.Data.FileURLs[0], data); err != nil {
		return "", err
	}
	return target.Data.BatchID, nil
}

func (c *Client) uploadBytes(ctx context.Context, uploadURL string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return terminalErr("build upload: %v", err)
	}
	// The upload URL is presigned; no auth header here.
	req.ContentLength = int64(len(data))

	resp, err := c.http.Do(req)
	if err != nil {
		return transientErr("upload bytes: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return checkStatus(resp, "upload bytes")
}

// -- phase 2: poll -----------------------------------------------------------

type pollResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		ExtractResult []struct {
			FileName   string `json:"file_name"`
			State      string `json:"state"`
			FullZipURL string `json:"full_zip_url"`
			ErrMsg     string `json:"err_msg"`
		} `json:"extract_result"`
	} `json:"data"`
}

// waitForResult polls the job at a fixed interval until it reports done
// or failed, or the total wait exceeds MaxPollTime. Transient poll
// failures and unrecognized states do not abort the loop.
func (c *Client) waitForResult(ctx context.Context, jobID string) (jobStatus, error) {
	deadline := time.Now().Add(c.cfg.MaxPollTime)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		st, err := c.pollOnce(ctx, jobID)
		if err != nil {
			log.Printf("extraction: poll error for job %s: %v", jobID, err)
		} else {
			switch st.State {
			case StateDone, StateFailed:
				return st, nil
			case StateUnknown:
				// Favor availability: an unknown state is treated as
				// still-running rather than failing the document.
				log.Printf("extraction: unrecognized job state %q for job %s, still waiting", st.RawState, jobID)
			}
		}

		if time.Now().After(deadline) {
			return jobStatus{}, terminalErr("extraction timed out after %s waiting for job %s", c.cfg.MaxPollTime, jobID)
		}

		select {
		case <-ctx.Done():
			return jobStatus{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) pollOnce(ctx context.Context, jobID string) (jobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/extract-results/batch/"+jobID, nil)
	if err != nil {
		return jobStatus{}, err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return jobStatus{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return jobStatus{}, fmt.Errorf("poll status %d", resp.StatusCode)
	}

	var pr pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return jobStatus{}, fmt.Errorf("decode poll response: %w", err)
	}
	if pr.Code != 0 {
		return jobStatus{}, fmt.Errorf("poll rejected: %s", pr.Msg)
	}
	if len(pr.Data.ExtractResult) == 0 {
		return jobStatus{State: StatePending, RawState: "pending"}, nil
	}

	r := pr.Data.ExtractResult[0]
	return jobStatus{
		State:     parseState(r.State),
		RawState:  r.State,
		ResultURL: r.FullZipURL,
		ErrMsg:    r.ErrMsg,
	}, nil
}

// -- phase 3: retrieve -------------------------------------------------------

// retrieve downloads the result archive and extracts the markdown
// artifact from it. A completed job without an artifact is a
// service-side defect, not a transient condition.
func (c *Client) retrieve(ctx context.Context, resultURL string) (string, error) {
	if resultURL == "" {
		return "", terminalErr("job reported done without a result location")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return "", terminalErr("build download: %v", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", transientErr("download archive: %v", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "download archive"); err != nil {
		return "", err
	}

	archive, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transientErr("read archive: %v", err)
	}

	text, err := markdownFromArchive(archive)
	if err != nil {
		return "", err
	}
	return text, nil
}

// checkStatus maps non-success HTTP responses onto the retryability
// policy: 4xx rejections are terminal, everything else is transient.
func checkStatus(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return terminalErr("%s: rejected with status %d", op, resp.StatusCode)
	}
	return transientErr("%s: status %d", op, resp.StatusCode)
}
