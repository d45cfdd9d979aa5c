package wan

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
const Name = "wan"

const defaultStyle = "realistic"

// Options configures the WAN AI client.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client talks to the WAN AI video API, the simplest of the backends:
// free-form resolutions, a flat status endpoint and a direct download URL.
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
		baseURL = "https://api.wan.ai/v1"
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
		MaxDurationSeconds:   30,
		MaxWidth:             1920,
		MaxHeight:            1080,
		SupportsImageInput:   true,
		CostPerSecond:        0.015,
		ImageCostMultiplier:  1.2,
		MaxPromptLength:      1000,
		SupportedResolutions: []string{"1920x1080", "1280x720", "1080x1920", "720x1280"},
		AspectRatios:         []string{"16:9", "9:16", "4:3", "1:1"},
		Formats:              []string{"mp4"},
		Models:               []string{"wan-video-v1", "wan-video-pro"},
	}
}

func (c *Client) Validate(req provider.Request) error {
	return provider.ValidateAgainst(Name, c.Capabilities(), req)
}

func (c *Client) EstimateCost(req provider.Request) domain.Credits {
	return provider.EstimateCost(c.Capabilities(), req)
}

type generateRequest struct {
	Prompt     string     `json:"prompt"`
	Duration   int        `json:"duration"`
	Resolution resolution `json:"resolution"`
	FPS        int        `json:"fps"`
	Style      string     `json:"style"`
	ImageURL   string     `json:"image_url,omitempty"`
}

type resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type videoResource struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	VideoURL     string `json:"video_url"`
	ErrorMessage string `json:"error_message"`
}

func (c *Client) Submit(ctx context.Context, req provider.Request) (*provider.Submission, error) {
	payload := generateRequest{
		Prompt:     req.Prompt,
		Duration:   req.DurationSeconds,
		Resolution: resolution{Width: req.Width, Height: req.Height},
		FPS:        req.FPS,
		Style:      styleFor(req.Params),
		ImageURL:   req.ImageURL,
	}
	var resp videoResource
	if err := c.do(ctx, http.MethodPost, "/videos/generate", payload, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, provider.Errorf(Name, "bad_response", "response missing job id")
	}
	c.logger.Debug().Str("job_id", resp.ID).Msg("wan: generation started")
	return &provider.Submission{
		ExternalID:       resp.ID,
		State:            provider.StateProcessing,
		Progress:         0,
		EstimatedSeconds: req.DurationSeconds * 15,
	}, nil
}

func (c *Client) Poll(ctx context.Context, externalID string) (*provider.Status, error) {
	var resp videoResource
	if err := c.do(ctx, http.MethodGet, "/videos/"+externalID, nil, &resp); err != nil {
		return nil, err
	}
	switch strings.ToLower(resp.Status) {
	case "completed":
		return &provider.Status{State: provider.StateCompleted, Progress: 100, ArtifactURL: resp.VideoURL}, nil
	case "failed":
		msg := resp.ErrorMessage
		if msg == "" {
			msg = "Video generation failed"
		}
		return &provider.Status{State: provider.StateFailed, Progress: resp.Progress, ErrorMessage: msg}, nil
	default:
		return &provider.Status{State: provider.StateProcessing, Progress: resp.Progress}, nil
	}
}

func (c *Client) FetchArtifact(ctx context.Context, externalID string) ([]byte, error) {
	status, err := c.Poll(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if status.State != provider.StateCompleted || status.ArtifactURL == "" {
		return nil, nil
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, status.ArtifactURL, nil)
	if err != nil {
		return nil, provider.Errorf(Name, "bad_request", "build download request: %v", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransport(Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, provider.Errorf(Name, "download_failed", "video download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, provider.Errorf(Name, "download_failed", "read video: %v", err)
	}
	return data, nil
}

func (c *Client) Cancel(ctx context.Context, externalID string) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/videos/"+externalID, nil)
	if err != nil {
		return false
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent
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
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		var detail apiError
		if err := json.Unmarshal(raw, &detail); err == nil {
			if detail.Error.Message != "" {
				msg = detail.Error.Message
			} else if detail.Message != "" {
				msg = detail.Message
			}
		}
		return provider.FromStatusCode(Name, resp.StatusCode, msg)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return provider.Errorf(Name, "decode", "decode response: %v", err)
		}
	}
	return nil
}

func styleFor(params map[string]any) string {
	if v, ok := params["style"].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return defaultStyle
}
