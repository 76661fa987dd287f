// Package upstream talks to the document host's REST endpoints.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pdfworker/internal/report"
)

const maxErrorBody = 512

// Config holds the host address and its basic-auth key.
type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	MetadataPath string
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Unwrap classifies every status failure as report.ErrUpstream.
func (e *StatusError) Unwrap() error { return report.ErrUpstream }

// Client fetches task, tracker and preview metadata.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New returns a Client. A nil httpClient gets one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("upstream base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse upstream base url: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MetadataPath == "" {
		cfg.MetadataPath = "/dtas/preview-metadata.spr"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, httpClient: httpClient, logger: logger.Named("upstream")}, nil
}

// Task fetches /api/v3/items/{id}.
func (c *Client) Task(ctx context.Context, taskID string) (report.Task, error) {
	var task report.Task
	if err := c.get(ctx, "/api/v3/items/"+url.PathEscape(taskID), nil, &task); err != nil {
		return report.Task{}, fmt.Errorf("fetch task %s: %w", taskID, err)
	}
	return task, nil
}

// Tracker fetches /api/v3/trackers/{id}.
func (c *Client) Tracker(ctx context.Context, trackerID int64) (report.Tracker, error) {
	var tracker report.Tracker
	if err := c.get(ctx, "/api/v3/trackers/"+strconv.FormatInt(trackerID, 10), nil, &tracker); err != nil {
		return report.Tracker{}, fmt.Errorf("fetch tracker %d: %w", trackerID, err)
	}
	return tracker, nil
}

// PreviewMetadata fetches the render options for a task. A blank template
// name is left off the query.
func (c *Client) PreviewMetadata(ctx context.Context, taskID, templateName string) (report.PreviewMetadata, error) {
	query := url.Values{"task_id": {taskID}}
	if name := strings.TrimSpace(templateName); name != "" {
		query.Set("template_name", name)
	}
	var meta report.PreviewMetadata
	if err := c.get(ctx, c.cfg.MetadataPath, query, &meta); err != nil {
		return report.PreviewMetadata{}, fmt.Errorf("fetch preview metadata %s: %w", taskID, err)
	}
	return meta, nil
}

// Request fetches task, tracker and preview metadata in that order and
// bundles them into a GenerationRequest.
func (c *Client) Request(ctx context.Context, taskID, userID, templateName string) (report.GenerationRequest, error) {
	task, err := c.Task(ctx, taskID)
	if err != nil {
		return report.GenerationRequest{}, err
	}
	c.logger.Info("task fetched", zap.String("task_id", taskID), zap.String("name", task.Name))

	tracker, err := c.Tracker(ctx, task.Tracker.ID)
	if err != nil {
		return report.GenerationRequest{}, err
	}
	c.logger.Info("tracker fetched", zap.Int64("tracker_id", tracker.ID), zap.String("description", tracker.Description))

	meta, err := c.PreviewMetadata(ctx, taskID, templateName)
	if err != nil {
		return report.GenerationRequest{}, err
	}
	c.logger.Info("preview metadata fetched",
		zap.String("task_id", taskID),
		zap.Bool("render_toc", meta.RenderTOC),
		zap.Bool("render_history", meta.RenderHistory),
		zap.String("cover_template", meta.CoverTemplate),
	)

	return report.GenerationRequest{
		TaskID:       taskID,
		UserID:       userID,
		TemplateName: strings.TrimSpace(templateName),
		Task:         task,
		Tracker:      tracker,
		Preview:      meta,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.cfg.BaseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w: %w", report.ErrUpstream, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{URL: target, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w: %w", report.ErrUpstream, err)
	}
	return nil
}
