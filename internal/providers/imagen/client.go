package imagen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"

	"sciencenova/internal/domain"
	"sciencenova/internal/infra"
)

const (
	defaultLocation = "us-central1"
	defaultModel    = "imagen-4.0-generate-preview-06-06"
	cloudScope      = "https://www.googleapis.com/auth/cloud-platform"
	maxErrorBody    = 2048
)

// placeholderValues are sample credentials shipped in env templates. A
// deployment still carrying them is treated as unconfigured.
var placeholderValues = []string{
	"your-project-id",
	"science-nova-ai-123456",
	"your-private-key",
	"MIIEvgIBADANBgkqhkiG9w0BAQEFAASCBKgwggSkAgEAAoIBAQC",
	"your-service-account@your-project.iam.gserviceaccount.com",
	"science-nova-ai-service@science-nova-ai-123456.iam.gserviceaccount.com",
}

// storyStyle is appended to every prompt.
const storyStyle = ". Style: High-quality digital illustration, cinematic lighting, vibrant colors, " +
	"storybook illustration style, wide landscape format perfect for full-screen background, " +
	"detailed and immersive, suitable for children's educational content, " +
	"atmospheric depth, professional illustration quality. " +
	"Avoid any text, letters, or words in the image."

// Options configures the Vertex AI Imagen client.
type Options struct {
	ProjectID    string
	Location     string
	Model        string
	ClientEmail  string
	PrivateKey   string
	PrivateKeyID string
	BaseURL      string
	HTTPClient   *http.Client
	Timeout      time.Duration
	// TokenSource overrides the service-account JWT flow.
	TokenSource oauth2.TokenSource
	Logger      *infra.Logger
}

// Client calls the Imagen :predict endpoint once per Generate.
type Client struct {
	projectID   string
	location    string
	model       string
	clientEmail string
	privateKey  string
	keyID       string
	baseURL     string
	httpClient  *http.Client
	logger      infra.Logger

	tokenOnce   sync.Once
	tokenSource oauth2.TokenSource
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParams     `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParams struct {
	SampleCount       int    `json:"sampleCount"`
	AspectRatio       string `json:"aspectRatio"`
	SafetyFilterLevel string `json:"safetyFilterLevel"`
	PersonGeneration  string `json:"personGeneration"`
}

type predictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
		MIMEType           string `json:"mimeType"`
		RAIFilteredReason  string `json:"raiFilteredReason"`
	} `json:"predictions"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewClient constructs a client. Missing credentials are not an error here;
// Configured reports them and Generate refuses to call out.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	location := strings.TrimSpace(opts.Location)
	if location == "" {
		location = defaultLocation
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", location)
	}
	return &Client{
		projectID:   strings.TrimSpace(opts.ProjectID),
		location:    location,
		model:       model,
		clientEmail: strings.TrimSpace(opts.ClientEmail),
		privateKey:  opts.PrivateKey,
		keyID:       strings.TrimSpace(opts.PrivateKeyID),
		baseURL:     baseURL,
		httpClient:  httpClient,
		logger:      infra.LoggerOrNop(opts.Logger),
		tokenSource: opts.TokenSource,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Configured reports whether every credential field is present and none is
// a template placeholder.
func (c *Client) Configured() bool {
	if !usable(c.projectID) {
		return false
	}
	if c.tokenSource != nil {
		return true
	}
	return usable(c.clientEmail) && usable(c.privateKey)
}

func usable(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	for _, p := range placeholderValues {
		if v == p || strings.Contains(v, p) {
			return false
		}
	}
	return true
}

// Generate renders one image for prompt.
func (c *Client) Generate(ctx context.Context, prompt, aspectRatio string) (*domain.Image, error) {
	if !c.Configured() {
		return nil, domain.ErrNotConfigured
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("imagen: %w", domain.ErrInvalidPrompt)
	}
	if aspectRatio == "" {
		aspectRatio = "16:9"
	}

	token, err := c.tokens().Token()
	if err != nil {
		return nil, fmt.Errorf("imagen: fetch token: %w: %w", domain.ErrUnauthenticated, err)
	}

	payload := predictRequest{
		Instances: []predictInstance{{Prompt: prompt + storyStyle}},
		Parameters: predictParams{
			SampleCount:       1,
			AspectRatio:       aspectRatio,
			SafetyFilterLevel: "block_some",
			PersonGeneration:  "allow_adult",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("imagen: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/projects/%s/locations/%s/publishers/google/models/%s:predict",
		c.baseURL, c.projectID, c.location, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("imagen: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	token.SetAuthHeader(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("imagen: http request: %w: %w", domain.ErrRemote, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("imagen: read response: %w: %w", domain.ErrRemote, err)
	}

	if resp.StatusCode >= 300 {
		return nil, classifyStatus(resp.StatusCode, raw)
	}

	var decoded predictResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("imagen: decode response: %w: %w", domain.ErrEmptyResponse, err)
	}
	if len(decoded.Predictions) == 0 || decoded.Predictions[0].BytesBase64Encoded == "" {
		reason := ""
		if len(decoded.Predictions) > 0 {
			reason = decoded.Predictions[0].RAIFilteredReason
		}
		c.logger.Debug().Str("model", c.model).Str("filtered_reason", reason).Msg("imagen: no image in response")
		return nil, fmt.Errorf("imagen: %w", domain.ErrEmptyResponse)
	}
	pred := decoded.Predictions[0]
	data, err := base64.StdEncoding.DecodeString(pred.BytesBase64Encoded)
	if err != nil {
		return nil, fmt.Errorf("imagen: decode image: %w: %w", domain.ErrEmptyResponse, err)
	}
	mime := pred.MIMEType
	if mime == "" {
		mime = "image/png"
	}

	c.logger.Debug().
		Str("model", c.model).
		Int("bytes", len(data)).
		Str("aspect_ratio", aspectRatio).
		Msg("imagen: generated image")
	return &domain.Image{Data: data, MIMEType: mime}, nil
}

func (c *Client) tokens() oauth2.TokenSource {
	c.tokenOnce.Do(func() {
		if c.tokenSource != nil {
			return
		}
		conf := &jwt.Config{
			Email:        c.clientEmail,
			PrivateKey:   []byte(c.privateKey),
			PrivateKeyID: c.keyID,
			Scopes:       []string{cloudScope},
			TokenURL:     google.JWTTokenURL,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
		c.tokenSource = conf.TokenSource(ctx)
	})
	return c.tokenSource
}

// classifyStatus maps a non-success response onto the provider error set.
func classifyStatus(status int, raw []byte) error {
	msg := strings.TrimSpace(string(raw))
	var detail errorResponse
	if err := json.Unmarshal(raw, &detail); err == nil && detail.Error.Message != "" {
		msg = detail.Error.Message
		if detail.Error.Status != "" {
			msg += " (" + detail.Error.Status + ")"
		}
	}
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("imagen: status %d: %w: %s", status, domain.ErrUnauthenticated, msg)
	case status == http.StatusTooManyRequests && isQuotaMessage(msg):
		return fmt.Errorf("imagen: status %d: %w: %w: %s", status, domain.ErrQuotaExhausted, domain.ErrRateLimited, msg)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("imagen: status %d: %w: %s", status, domain.ErrRateLimited, msg)
	default:
		return fmt.Errorf("imagen: status %d: %w: %s", status, domain.ErrRemote, msg)
	}
}

// isQuotaMessage separates project quota exhaustion from short-lived
// per-minute throttling, which also answers 429.
func isQuotaMessage(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "quota exceeded")
}
