package handlers

import (
	"net/http"
	"strings"

	"sciencenova/internal/domain"
	"sciencenova/internal/generation"
)

const fallbackType = "gradient"

type imageGenerateRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio"`
	GradeLevel  *int   `json:"gradeLevel"`
	SkipCache   bool   `json:"skipCache"`
}

type imageGenerateResponse struct {
	Success        bool   `json:"success"`
	Type           string `json:"type"`
	ImageURL       string `json:"imageUrl"`
	Theme          string `json:"theme,omitempty"`
	VisualEffect   string `json:"visualEffect,omitempty"`
	Reason         string `json:"reason,omitempty"`
	RateLimited    bool   `json:"rateLimited,omitempty"`
	QuotaExhausted bool   `json:"quotaExhausted,omitempty"`
	FromCache      bool   `json:"fromCache"`
	GenerationTime int64  `json:"generationTime"`
}

// ImagesGenerate answers 200 for every generation outcome; a failed remote
// call becomes a gradient placeholder.
func (a *App) ImagesGenerate(w http.ResponseWriter, r *http.Request) {
	var req imageGenerateRequest
	if !a.decode(w, r, &req) {
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "Prompt is required")
		return
	}

	res := a.Images.GenerateOrFallback(r.Context(), generation.Request{
		Prompt:      req.Prompt,
		AspectRatio: strings.TrimSpace(req.AspectRatio),
		GradeLevel:  req.GradeLevel,
		SkipCache:   req.SkipCache,
	})
	a.json(w, http.StatusOK, toImageResponse(res))
}

func toImageResponse(res domain.GenerationResult) imageGenerateResponse {
	out := imageGenerateResponse{
		Success:        true,
		FromCache:      res.FromCache,
		GenerationTime: res.Duration.Milliseconds(),
	}
	if !res.IsFallback() && res.Image != nil {
		out.Type = string(domain.ResultAIGenerated)
		out.ImageURL = res.Image.DataURL()
		return out
	}

	out.Type = fallbackType
	out.Reason = string(res.Reason)
	out.RateLimited = res.Reason == domain.FailureRateLimited
	out.QuotaExhausted = res.Reason == domain.FailureQuotaExhausted
	p := res.Placeholder
	if p == nil {
		fb := generation.RenderFallback("")
		p = &fb
	}
	out.ImageURL = p.Gradient
	out.Theme = p.Theme
	out.VisualEffect = p.VisualEffect
	return out
}
