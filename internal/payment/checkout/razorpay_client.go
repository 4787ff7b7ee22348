package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/tryon/internal/config"
	paymentdomain "github.com/smallbiznis/tryon/internal/payment/domain"
)

const razorpayAPIBase = "https://api.razorpay.com"

type razorpayClient struct {
	baseURL   string
	keyID     string
	keySecret string
	returnURL string
	client    *http.Client
}

func newRazorpayClient(baseURL, keyID, keySecret, returnURL string, client *http.Client) *razorpayClient {
	if client == nil {
		client = &http.Client{Timeout: 12 * time.Second}
	}
	return &razorpayClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     strings.TrimSpace(keyID),
		keySecret: strings.TrimSpace(keySecret),
		returnURL: strings.TrimSpace(returnURL),
		client:    client,
	}
}

func (c *razorpayClient) configured() bool {
	return c.keyID != "" && c.keySecret != ""
}

type razorpayLinkRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Description    string            `json:"description"`
	Notify         map[string]bool   `json:"notify"`
	Notes          map[string]string `json:"notes"`
	CallbackURL    string            `json:"callback_url,omitempty"`
	CallbackMethod string            `json:"callback_method,omitempty"`
}

type razorpayLinkResponse struct {
	ID       string `json:"id"`
	ShortURL string `json:"short_url"`
	Error    struct {
		Description string `json:"description"`
	} `json:"error"`
}

func (c *razorpayClient) create(ctx context.Context, pack config.Pack, price config.PackPrice, identityRef string) (string, error) {
	if price.Amount <= 0 || price.Currency == "" {
		return "", paymentdomain.ErrInvalidPack
	}
	body := razorpayLinkRequest{
		Amount:      price.Amount,
		Currency:    price.Currency,
		Description: pack.Label,
		Notify:      map[string]bool{"sms": false, "email": false},
		Notes: map[string]string{
			"device_id": identityRef,
			"credits":   strconv.Itoa(pack.Credits),
		},
	}
	if c.returnURL != "" {
		body.CallbackURL = c.returnURL
		body.CallbackMethod = "get"
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payment_links", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", failed("razorpay: %v", err)
	}
	defer resp.Body.Close()

	var out razorpayLinkResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode >= http.StatusBadRequest {
		detail := resp.Status
		if decodeErr == nil && out.Error.Description != "" {
			detail = out.Error.Description
		}
		return "", failed("razorpay: %s", detail)
	}
	if decodeErr != nil || out.ShortURL == "" {
		return "", failed("razorpay: short url missing")
	}
	return out.ShortURL, nil
}
