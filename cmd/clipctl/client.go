package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/clipforge/clipforge-agent/internal/api"
)

// client is a thin wrapper over the agent's HTTP API. Regular calls get a
// request timeout; the SSE stream uses a separate client with none.
type client struct {
	baseURL   string
	token     string
	http      *http.Client
	streaming *http.Client
}

func newClient(addr, token string) *client {
	return &client{
		baseURL:   strings.TrimRight(addr, "/"),
		token:     token,
		http:      &http.Client{Timeout: 30 * time.Second},
		streaming: &http.Client{},
	}
}

func (c *client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// apiError extracts the agent's {"error", "code"} payload, falling back to
// the HTTP status line.
func apiError(resp *http.Response) error {
	defer resp.Body.Close()
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err == nil && payload.Error != "" {
		return errors.New(payload.Error)
	}
	return fmt.Errorf("agent replied %s", resp.Status)
}

func (c *client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	defer resp.Body.Close()
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) delete(ctx context.Context, path string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	resp.Body.Close()
	return nil
}

// resolveJobID accepts a full job id or a unique prefix (the tables print
// the first 8 characters).
func (c *client) resolveJobID(ctx context.Context, ref string) (string, error) {
	var job api.JobResponse
	if err := c.getJSON(ctx, "/jobs/"+ref, &job); err == nil {
		return job.ID, nil
	}

	var resp api.JobsResponse
	if err := c.getJSON(ctx, "/jobs", &resp); err != nil {
		return "", err
	}
	match := ""
	for _, j := range resp.Jobs {
		if strings.HasPrefix(j.ID, ref) {
			if match != "" && match != j.ID {
				return "", fmt.Errorf("job id %q is ambiguous", ref)
			}
			match = j.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no job matches %q", ref)
	}
	return match, nil
}

// resolveClipID is the clip-side twin of resolveJobID.
func (c *client) resolveClipID(ctx context.Context, ref string) (string, error) {
	var clip api.ClipResponse
	if err := c.getJSON(ctx, "/clips/"+ref, &clip); err == nil {
		return clip.ID, nil
	}

	var resp api.ClipsResponse
	if err := c.getJSON(ctx, "/clips", &resp); err != nil {
		return "", err
	}
	match := ""
	for _, cl := range resp.Clips {
		if strings.HasPrefix(cl.ID, ref) {
			if match != "" && match != cl.ID {
				return "", fmt.Errorf("clip id %q is ambiguous", ref)
			}
			match = cl.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no clip matches %q", ref)
	}
	return match, nil
}

// followJob consumes a job's SSE stream, invoking onProgress for each
// percentage. It returns the output path from the terminal done event, or
// the error event's message as an error.
func (c *client) followJob(ctx context.Context, jobID string, onProgress func(int)) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/jobs/"+jobID+"/events", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.streaming.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			switch event {
			case "progress":
				if p, err := strconv.Atoi(data); err == nil {
					onProgress(p)
				}
			case "done":
				return data, nil
			case "error":
				return "", errors.New(data)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", errors.New("event stream ended without a result")
}
