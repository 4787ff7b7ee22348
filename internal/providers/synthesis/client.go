// Package synthesis calls the external image synthesis service that renders a
// person wearing a garment.
package synthesis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
	"github.com/smallbiznis/tryon/internal/config"
)

var (
	ErrNotConfigured     = errors.New("synthesis_not_configured")
	ErrInvalidImage      = errors.New("invalid_image")
	ErrImageTooLarge     = errors.New("image_too_large")
	ErrInvalidGarmentURL = errors.New("invalid_garment_url")
	ErrGarmentFetch      = errors.New("garment_fetch_failed")
	ErrSynthesisFailed   = errors.New("synthesis_failed")
)

// Result is the rendered output of one synthesis call.
type Result struct {
	ImageURL string
}

type Client struct {
	endpoint string
	apiKey   string
	maxBytes int64
	api      *http.Client
	fetch    *http.Client
}

// NewClient fetches garments through a safeurl client, which refuses
// private, loopback and link-local targets after DNS resolution.
func NewClient(cfg config.Config) *Client {
	timeout := cfg.Synthesis.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	fetchCfg := safeurl.GetConfigBuilder().
		SetTimeout(30 * time.Second).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return newClient(
		cfg.Synthesis.Endpoint,
		cfg.Synthesis.APIKey,
		cfg.Synthesis.MaxImageBytes,
		&http.Client{Timeout: timeout},
		safeurl.Client(fetchCfg).Client,
	)
}

func newClient(endpoint, apiKey string, maxBytes int64, api, fetch *http.Client) *Client {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Client{
		endpoint: strings.TrimSpace(endpoint),
		apiKey:   strings.TrimSpace(apiKey),
		maxBytes: maxBytes,
		api:      api,
		fetch:    fetch,
	}
}

func (c *Client) Configured() bool {
	return c.endpoint != ""
}

func (c *Client) Synthesize(ctx context.Context, personImage []byte, garmentURL string) (Result, error) {
	if !c.Configured() {
		return Result{}, ErrNotConfigured
	}
	person, err := c.dataURI(personImage)
	if err != nil {
		return Result{}, err
	}
	garmentRaw, err := c.fetchGarment(ctx, garmentURL)
	if err != nil {
		return Result{}, err
	}
	garment, err := c.dataURI(garmentRaw)
	if err != nil {
		return Result{}, fmt.Errorf("%w: garment: %v", ErrGarmentFetch, err)
	}

	body, err := json.Marshal(map[string]string{
		"human_image":   person,
		"garment_image": garment,
	})
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.api.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return Result{}, fmt.Errorf("%w: status %d", ErrSynthesisFailed, resp.StatusCode)
	}
	var payload map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %v", ErrSynthesisFailed, err)
	}
	imageURL := extractImageURL(payload)
	if imageURL == "" {
		return Result{}, fmt.Errorf("%w: no output image in response", ErrSynthesisFailed)
	}
	return Result{ImageURL: imageURL}, nil
}

func (c *Client) fetchGarment(ctx context.Context, raw string) ([]byte, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return nil, ErrInvalidGarmentURL
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return nil, ErrInvalidGarmentURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, ErrInvalidGarmentURL
	}
	resp, err := c.fetch.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGarmentFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrGarmentFetch, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGarmentFetch, err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, ErrImageTooLarge
	}
	return data, nil
}

// dataURI sniffs the image type so the service receives a self-describing payload.
func (c *Client) dataURI(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrInvalidImage
	}
	if int64(len(data)) > c.maxBytes {
		return "", ErrImageTooLarge
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrInvalidImage
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func extractImageURL(payload map[string]any) string {
	if v, ok := payload["image_url"].(string); ok && v != "" {
		return v
	}
	if data, ok := payload["data"].(map[string]any); ok {
		if v, ok := data["image_url"].(string); ok && v != "" {
			return v
		}
	}
	if image, ok := payload["image"].(map[string]any); ok {
		if v, ok := image["url"].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
