package domain

import (
	"encoding/base64"
	"time"
)

// PromptKey groups prompts for breaker accounting.
type PromptKey string

// Image is a generated raster image.
type Image struct {
	Data     []byte
	MIMEType string
}

// DataURL renders the image as an inline data URL.
func (i Image) DataURL() string {
	mime := i.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Placeholder is the locally rendered substitute for a generated image.
type Placeholder struct {
	Theme        string `json:"theme"`
	Gradient     string `json:"gradient"`
	VisualEffect string `json:"visualEffect"`
}

// FailureKind classifies why a generation fell back.
type FailureKind string

const (
	FailureNotConfigured   FailureKind = "not_configured"
	FailureUnauthenticated FailureKind = "unauthenticated"
	FailureRateLimited     FailureKind = "rate_limited"
	FailureQuotaExhausted  FailureKind = "quota_exhausted"
	FailureRemote          FailureKind = "remote_error"
	FailureEmptyResponse   FailureKind = "empty_response"
)

// ResultKind distinguishes the two GenerationResult variants.
type ResultKind string

const (
	ResultAIGenerated ResultKind = "ai-generated"
	ResultFallback    ResultKind = "fallback"
)

// GenerationResult is either an AI image or a fallback placeholder with a reason.
type GenerationResult struct {
	Kind        ResultKind
	Image       *Image
	Placeholder *Placeholder
	Reason      FailureKind
	FromCache   bool
	Duration    time.Duration
}

// AIGenerated wraps a successful image.
func AIGenerated(img Image) GenerationResult {
	return GenerationResult{Kind: ResultAIGenerated, Image: &img}
}

// Fallback wraps a placeholder and the reason it was used.
func Fallback(p Placeholder, reason FailureKind) GenerationResult {
	return GenerationResult{Kind: ResultFallback, Placeholder: &p, Reason: reason}
}

// IsFallback reports whether the result is a placeholder.
func (r GenerationResult) IsFallback() bool {
	return r.Kind == ResultFallback
}
