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

const lemonAPIBase = "https://api.lemonsqueezy.com"

type lemonClient struct {
	baseURL   string
	apiKey    string
	storeID   string
	returnURL string
	client    *http.Client
}

func newLemonClient(baseURL, apiKey, storeID, returnURL string, client *http.Client) *lemonClient {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &lemonClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    strings.TrimSpace(apiKey),
		storeID:   strings.TrimSpace(storeID),
		returnURL: strings.TrimSpace(returnURL),
		client:    client,
	}
}

func (c *lemonClient) configured() bool {
	return c.apiKey != "" && c.storeID != ""
}

type jsonAPIRef struct {
	Data struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"data"`
}

func ref(kind, id string) jsonAPIRef {
	var r jsonAPIRef
	r.Data.Type = kind
	r.Data.ID = id
	return r
}

type lemonCheckoutRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			CheckoutData struct {
				Custom map[string]string `json:"custom"`
			} `json:"checkout_data"`
			ProductOptions *struct {
				RedirectURL string `json:"redirect_url"`
			} `json:"product_options,omitempty"`
		} `json:"attributes"`
		Relationships struct {
			Store   jsonAPIRef `json:"store"`
			Variant jsonAPIRef `json:"variant"`
		} `json:"relationships"`
	} `json:"data"`
}

type lemonCheckoutResponse struct {
	Data struct {
		Attributes struct {
			URL string `json:"url"`
		} `json:"attributes"`
	} `json:"data"`
	Errors []struct {
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (c *lemonClient) create(ctx context.Context, pack config.Pack, price config.PackPrice, identityRef string) (string, error) {
	variant := strings.TrimSpace(price.VariantID)
	if variant == "" {
		return "", paymentdomain.ErrInvalidPack
	}

	var body lemonCheckoutRequest
	body.Data.Type = "checkouts"
	body.Data.Attributes.CheckoutData.Custom = map[string]string{
		"device_id": identityRef,
		"credits":   strconv.Itoa(pack.Credits),
	}
	if c.returnURL != "" {
		body.Data.Attributes.ProductOptions = &struct {
			RedirectURL string `json:"redirect_url"`
		}{RedirectURL: c.returnURL}
	}
	body.Data.Relationships.Store = ref("stores", c.storeID)
	body.Data.Relationships.Variant = ref("variants", variant)

	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkouts", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/vnd.api+json")
	req.Header.Set("Content-Type", "application/vnd.api+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", failed("lemonsqueezy: %v", err)
	}
	defer resp.Body.Close()

	var out lemonCheckoutResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode >= http.StatusBadRequest {
		detail := resp.Status
		if decodeErr == nil && len(out.Errors) > 0 && out.Errors[0].Detail != "" {
			detail = out.Errors[0].Detail
		}
		return "", failed("lemonsqueezy: %s", detail)
	}
	if decodeErr != nil || out.Data.Attributes.URL == "" {
		return "", failed("lemonsqueezy: checkout url missing")
	}
	return out.Data.Attributes.URL, nil
}
