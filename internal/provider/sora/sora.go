package sora

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/provider"
)

// Name is the canonical provider identifier.
const Name = "sora"

// UI and database aliases mapped to the API model id.
var modelAliases = map[string]string{
	"sora-2":         "sora-2",
	"sora2":          "sora-2",
	"SORA2":          "sora-2",
	"Sora 2":         "sora-2",
	"Sora 2 Turbo":   "sora-2",
	"Sora 1.0 Turbo": "sora-2",
}

// Keys that caller-supplied params may never override.
var reservedParams = map[string]struct{}{
	"model":           {},
	"prompt":          {},
	"size":            {},
	"seconds":         {},
	"input_reference": {},
}

// Options configures the OpenAI video client.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client talks to the OpenAI /videos API. The endpoint only accepts a fixed
// set of sizes and bucketed durations, so requests are normalized before
// submission.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// New constructs a client with sane defaults.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (c *Client) Name() string { return Name }

func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		MaxDurationSeconds:   20,
		MaxWidth:             1792,
		MaxHeight:            1792,
		SupportsImageInput:   true,
		CostPerSecond:        0.05,
		ImageCostMultiplier:  1.8,
		MaxPromptLength:      1000,
		SupportedResolutions: []string{"720x1280", "1280x720", "1024x1792", "1792x1024"},
		AspectRatios:         []string{"16:9", "9:16"},
		Formats:              []string{"mp4"},
		Models:               []string{"sora-2"},
	}
}

func (c *Client) Validate(req provider.Request) error {
	if err := provider.ValidateAgainst(Name, c.Capabilities(), req); err != nil {
		return err
	}
	// Sizes get normalized at submit time, but reject aspect ratios that
	// cannot map onto any supported size.
	if !provider.AspectRatioNear(req.Width, req.Height, []float64{16.0 / 9.0, 9.0 / 16.0}, 0.15) {
		return provider.InvalidRequestf(Name, "aspect ratio not supported (expected ~16:9 or ~9:16)")
	}
	return nil
}

func (c *Client) EstimateCost(req provider.Request) domain.Credits {
	return provider.EstimateCost(c.Capabilities(), req)
}

func (c *Client) Submit(ctx context.Context, req provider.Request) (*provider.Submission, error) {
	payload := map[string]any{
		"model":   normalizeModel(req.Params),
		"prompt":  req.Prompt,
		"size":    normalizeSize(req.Width, req.Height),
		"seconds": normalizeSeconds(req.DurationSeconds),
	}
	if req.ImageURL != "" {
		payload["input_reference"] = req.ImageURL
	}
	for k, v := range req.Params {
		if _, reserved := reservedParams[k]; reserved {
			continue
		}
		payload[k] = v
	}

	var resp videoResource
	if err := c.do(ctx, http.MethodPost, "/videos", payload, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, provider.Errorf(Name, "bad_response", "response missing video id")
	}
	c.logger.Debug().Str("video_id", resp.ID).Str("status", resp.Status).Msg("sora: submission accepted")
	return &provider.Submission{
		ExternalID:       resp.ID,
		State:            stateFor(resp.Status),
		Progress:         resp.Progress,
		EstimatedSeconds: req.DurationSeconds * 30,
	}, nil
}

func (c *Client) Poll(ctx context.Context, externalID string) (*provider.Status, error) {
	var resp videoResource
	if err := c.do(ctx, http.MethodGet, "/videos/"+externalID, nil, &resp); err != nil {
		return nil, err
	}
	switch strings.ToLower(resp.Status) {
	case "completed":
		// Content is served by the API itself; there is no separate locator.
		return &provider.Status{State: provider.StateCompleted, Progress: 100}, nil
	case "failed", "canceled", "cancelled":
		msg := resp.Error.Message
		if msg == "" {
			msg = "Video generation failed"
		}
		return &provider.Status{State: provider.StateFailed, Progress: resp.Progress, ErrorMessage: msg}, nil
	default:
		return &provider.Status{State: provider.StateProcessing, Progress: resp.Progress}, nil
	}
}

func (c *Client) FetchArtifact(ctx context.Context, externalID string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos/"+externalID+"/content", nil)
	if err != nil {
		return nil, provider.Errorf(Name, "bad_request", "build download request: %v", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransport(Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, provider.Errorf(Name, "download_failed", "content download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Errorf(Name, "download_failed", "read content: %v", err)
	}
	return data, nil
}

func (c *Client) Cancel(ctx context.Context, externalID string) bool {
	var resp videoResource
	if err := c.do(ctx, http.MethodPost, "/videos/"+externalID+"/cancel", nil, &resp); err != nil {
		return false
	}
	return true
}

type videoResource struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Model    string `json:"model"`
	Error    struct {
		Message string `json:"message"`
	} `json:"error"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return provider.Errorf(Name, "encode", "encode request: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return provider.Errorf(Name, "bad_request", "build request: %v", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return provider.WrapTransport(Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Errorf(Name, "read_response", "read response: %v", err)
	}
	if resp.StatusCode >= 300 {
		return provider.FromStatusCode(Name, resp.StatusCode, errorMessage(resp.StatusCode, raw))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return provider.Errorf(Name, "decode", "decode response: %v", err)
		}
	}
	return nil
}

func errorMessage(statusCode int, raw []byte) string {
	var detail apiError
	if err := json.Unmarshal(raw, &detail); err == nil {
		if detail.Error.Message != "" {
			return detail.Error.Message
		}
		if detail.Message != "" {
			return detail.Message
		}
	}
	switch {
	case statusCode == 401:
		return "Invalid API key"
	case statusCode == 403:
		return "Access denied"
	case statusCode >= 500:
		return "Service temporarily unavailable"
	}
	return fmt.Sprintf("HTTP %d: %s", statusCode, strings.TrimSpace(string(raw)))
}

func stateFor(status string) provider.JobState {
	switch strings.ToLower(status) {
	case "completed":
		return provider.StateCompleted
	case "failed", "canceled", "cancelled":
		return provider.StateFailed
	default:
		return provider.StateProcessing
	}
}

func normalizeModel(params map[string]any) string {
	if v, ok := params["model"].(string); ok {
		if mapped, ok := modelAliases[strings.TrimSpace(v)]; ok {
			return mapped
		}
	}
	return "sora-2"
}

// The API rejects free-form sizes; any requested resolution maps onto the
// safe landscape or portrait size by orientation.
func normalizeSize(width, height int) string {
	if width >= height {
		return "1280x720"
	}
	return "720x1280"
}

// Durations are only accepted in fixed buckets.
func normalizeSeconds(duration int) string {
	switch {
	case duration <= 4:
		return "4"
	case duration <= 8:
		return "8"
	default:
		return "12"
	}
}
