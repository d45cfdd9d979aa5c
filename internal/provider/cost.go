package provider

import (
	"math"
	"strings"

	"server/internal/domain"
)

// Resolution tier multipliers, strictly increasing with pixel count.
const (
	multiplierSD    = 1.0
	multiplierHD    = 1.5
	multiplierFHD   = 2.0
	multiplier4K    = 3.0
	multiplierUltra = 4.0
)

// ResolutionMultiplier returns the pricing multiplier for the requested
// output resolution.
func ResolutionMultiplier(width, height int) float64 {
	pixels := width * height
	switch {
	case pixels <= 720*480:
		return multiplierSD
	case pixels <= 1280*720:
		return multiplierHD
	case pixels <= 1920*1080:
		return multiplierFHD
	case pixels <= 3840*2160:
		return multiplier4K
	default:
		return multiplierUltra
	}
}

// EstimateCost prices a request against a capability record:
// duration times cost-per-second, times the image-input multiplier when a
// source image is attached, times the resolution tier multiplier, rounded
// to whole hundredths. Pure by construction.
func EstimateCost(caps Capabilities, req Request) domain.Credits {
	cost := float64(req.DurationSeconds) * caps.CostPerSecond
	if req.ImageURL != "" && caps.SupportsImageInput {
		cost *= caps.ImageCostMultiplier
	}
	cost *= ResolutionMultiplier(req.Width, req.Height)
	return domain.CreditsFromFloat(cost)
}

// ValidateAgainst performs the capability checks shared by every backend:
// positive duration within the maximum, resolution within bounds, and a
// non-empty prompt within the length limit. Providers layer their own
// aspect-ratio or size rules on top.
func ValidateAgainst(providerName string, caps Capabilities, req Request) error {
	if req.DurationSeconds <= 0 {
		return InvalidRequestf(providerName, "duration must be positive")
	}
	if req.DurationSeconds > caps.MaxDurationSeconds {
		return InvalidRequestf(providerName, "duration %ds exceeds maximum %ds", req.DurationSeconds, caps.MaxDurationSeconds)
	}
	if req.Width <= 0 || req.Height <= 0 {
		return InvalidRequestf(providerName, "resolution must be positive")
	}
	if req.Width > caps.MaxWidth || req.Height > caps.MaxHeight {
		return InvalidRequestf(providerName, "resolution %dx%d exceeds maximum %dx%d", req.Width, req.Height, caps.MaxWidth, caps.MaxHeight)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return InvalidRequestf(providerName, "prompt cannot be empty")
	}
	if caps.MaxPromptLength > 0 && len(req.Prompt) > caps.MaxPromptLength {
		return InvalidRequestf(providerName, "prompt too long (max %d characters)", caps.MaxPromptLength)
	}
	if req.ImageURL != "" && !caps.SupportsImageInput {
		return InvalidRequestf(providerName, "image input is not supported")
	}
	return nil
}

// AspectRatioNear reports whether width:height is within tolerance of any of
// the given ratios.
func AspectRatioNear(width, height int, ratios []float64, tolerance float64) bool {
	if height <= 0 {
		return false
	}
	ratio := float64(width) / float64(height)
	for _, want := range ratios {
		if math.Abs(ratio-want) < tolerance {
			return true
		}
	}
	return false
}
