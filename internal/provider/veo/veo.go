package veo

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
const Name = "veo3"

const defaultModel = "veo-3.1-fast-generate-preview"

// Options configures the Google Veo client.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client drives Veo generation through the generative language API. Unlike
// the other backends, submission returns a long-running operation name that
// is polled until done; the finished operation carries a signed video URI.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
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
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
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
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (c *Client) Name() string { return Name }

func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		MaxDurationSeconds:   60,
		MaxWidth:             1920,
		MaxHeight:            1080,
		SupportsImageInput:   true,
		CostPerSecond:        0.02,
		ImageCostMultiplier:  1.5,
		MaxPromptLength:      2000,
		SupportedResolutions: []string{"1920x1080", "1080x1920"},
		AspectRatios:         []string{"16:9", "9:16"},
		Formats:              []string{"mp4"},
		Models:               []string{defaultModel, "veo-3.1-generate-preview"},
	}
}

func (c *Client) Validate(req provider.Request) error {
	if err := provider.ValidateAgainst(Name, c.Capabilities(), req); err != nil {
		return err
	}
	if !provider.AspectRatioNear(req.Width, req.Height, []float64{16.0 / 9.0, 9.0 / 16.0}, 0.1) {
		return provider.InvalidRequestf(Name, "only 16:9 and 9:16 aspect ratios are supported")
	}
	return nil
}

func (c *Client) EstimateCost(req provider.Request) domain.Credits {
	return provider.EstimateCost(c.Capabilities(), req)
}

type generateRequest struct {
	Instances  []generateInstance `json:"instances"`
	Parameters generateParameters `json:"parameters"`
}

type generateInstance struct {
	Prompt string         `json:"prompt"`
	Image  *imageInstance `json:"image,omitempty"`
}

type imageInstance struct {
	ImageURI string `json:"imageUri,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

type generateParameters struct {
	AspectRatio      string `json:"aspectRatio,omitempty"`
	DurationSeconds  int    `json:"durationSeconds,omitempty"`
	NumberOfVideos   int    `json:"numberOfVideos"`
	PersonGeneration string `json:"personGeneration,omitempty"`
}

type operation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Metadata struct {
		ProgressPercent int `json:"progressPercent"`
	} `json:"metadata"`
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Response struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

func (c *Client) Submit(ctx context.Context, req provider.Request) (*provider.Submission, error) {
	instance := generateInstance{Prompt: req.Prompt}
	if req.ImageURL != "" {
		instance.Image = &imageInstance{ImageURI: req.ImageURL, MimeType: "image/jpeg"}
	}
	payload := generateRequest{
		Instances: []generateInstance{instance},
		Parameters: generateParameters{
			AspectRatio:     aspectRatioString(req.Width, req.Height),
			DurationSeconds: req.DurationSeconds,
			NumberOfVideos:  1,
		},
	}

	var op operation
	path := fmt.Sprintf("/models/%s:predictLongRunning", c.model)
	if err := c.do(ctx, http.MethodPost, path, payload, &op); err != nil {
		return nil, err
	}
	if op.Name == "" {
		return nil, provider.Errorf(Name, "bad_response", "response missing operation name")
	}
	c.logger.Debug().Str("operation", op.Name).Msg("veo: operation started")
	return &provider.Submission{
		ExternalID:       op.Name,
		State:            provider.StateProcessing,
		Progress:         0,
		EstimatedSeconds: req.DurationSeconds * 20,
	}, nil
}

func (c *Client) Poll(ctx context.Context, externalID string) (*provider.Status, error) {
	op, err := c.getOperation(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if !op.Done {
		return &provider.Status{State: provider.StateProcessing, Progress: op.Metadata.ProgressPercent}, nil
	}
	if op.Error.Message != "" {
		return &provider.Status{State: provider.StateFailed, ErrorMessage: op.Error.Message}, nil
	}
	uri := firstVideoURI(*op)
	// Done without output is reported as completed-without-locator and left
	// to the lifecycle manager to reject.
	return &provider.Status{State: provider.StateCompleted, Progress: 100, ArtifactURL: uri}, nil
}

func (c *Client) FetchArtifact(ctx context.Context, externalID string) ([]byte, error) {
	op, err := c.getOperation(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if !op.Done {
		return nil, nil
	}
	uri := firstVideoURI(*op)
	if uri == "" {
		return nil, nil
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, provider.Errorf(Name, "bad_request", "build download request: %v", err)
	}
	httpReq.Header.Set("x-goog-api-key", c.apiKey)
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
	if err := c.do(ctx, http.MethodPost, "/"+externalID+":cancel", struct{}{}, nil); err != nil {
		return false
	}
	return true
}

func (c *Client) getOperation(ctx context.Context, name string) (*operation, error) {
	var op operation
	if err := c.do(ctx, http.MethodGet, "/"+name, nil, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
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
	httpReq.Header.Set("x-goog-api-key", c.apiKey)
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
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Error.Message != "" {
			msg = detail.Error.Message
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

func firstVideoURI(op operation) string {
	samples := op.Response.GenerateVideoResponse.GeneratedSamples
	if len(samples) == 0 {
		return ""
	}
	return samples[0].Video.URI
}

func aspectRatioString(width, height int) string {
	if provider.AspectRatioNear(width, height, []float64{9.0 / 16.0}, 0.1) {
		return "9:16"
	}
	return "16:9"
}
