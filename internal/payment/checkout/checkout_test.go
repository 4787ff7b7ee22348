package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/smallbiznis/tryon/internal/config"
	"github.com/smallbiznis/tryon/internal/payment/adapters"
	paypaladapter "github.com/smallbiznis/tryon/internal/payment/adapters/paypal"
	paymentdomain "github.com/smallbiznis/tryon/internal/payment/domain"
	paypalapi "github.com/smallbiznis/tryon/internal/providers/paypal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testPacks(t *testing.T) *config.PackCatalog {
	t.Helper()
	catalog, err := config.NewStaticPackCatalog([]config.Pack{{
		Code: "15", Label: "15 Try Pack", Credits: 15,
		Prices: map[string]config.PackPrice{
			adapters.ProviderRazorpay:     {Amount: 50000, Currency: "INR"},
			adapters.ProviderPayPal:       {Amount: 500, Currency: "USD"},
			adapters.ProviderLemonSqueezy: {VariantID: "var_15"},
		},
	}, {
		Code: "5", Label: "5 Try Pack", Credits: 5,
		Prices: map[string]config.PackPrice{
			adapters.ProviderRazorpay: {Amount: 20000, Currency: "INR"},
		},
	}})
	require.NoError(t, err)
	return catalog
}

func serve(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestLemonSqueezyLink(t *testing.T) {
	id := uuid.New()
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/checkouts", r.URL.Path)
		assert.Equal(t, "Bearer lemon-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.api+json", r.Header.Get("Content-Type"))

		var body lemonCheckoutRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "checkouts", body.Data.Type)
		assert.Equal(t, id.String(), body.Data.Attributes.CheckoutData.Custom["device_id"])
		assert.Equal(t, "15", body.Data.Attributes.CheckoutData.Custom["credits"])
		assert.Equal(t, "store_1", body.Data.Relationships.Store.Data.ID)
		assert.Equal(t, "var_15", body.Data.Relationships.Variant.Data.ID)

		_, _ = w.Write([]byte(`{"data":{"attributes":{"url":"https://pay.lemonsqueezy.com/checkout/abc"}}}`))
	})

	svc := newService(zap.NewNop(), testPacks(t), map[string]creator{
		adapters.ProviderLemonSqueezy: newLemonClient(base, "lemon-key", "store_1", "", nil),
	})
	link, err := svc.CreateLink(context.Background(), "LemonSqueezy", "15", id)
	require.NoError(t, err)
	assert.Equal(t, Link{Provider: "lemonsqueezy", Pack: "15", Credits: 15, URL: "https://pay.lemonsqueezy.com/checkout/abc"}, link)
}

func TestRazorpayLink(t *testing.T) {
	id := uuid.New()
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_links", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "rzp_key", user)
		assert.Equal(t, "rzp_secret", pass)

		var body razorpayLinkRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 50000, body.Amount)
		assert.Equal(t, "INR", body.Currency)
		assert.Equal(t, id.String(), body.Notes["device_id"])
		assert.Equal(t, "15", body.Notes["credits"])
		assert.Equal(t, "https://app.example/return", body.CallbackURL)

		_, _ = w.Write([]byte(`{"id":"plink_1","short_url":"https://rzp.io/i/abc"}`))
	})

	svc := newService(zap.NewNop(), testPacks(t), map[string]creator{
		adapters.ProviderRazorpay: newRazorpayClient(base, "rzp_key", "rzp_secret", "https://app.example/return", nil),
	})
	link, err := svc.CreateLink(context.Background(), "razorpay", "15", id)
	require.NoError(t, err)
	assert.Equal(t, "https://rzp.io/i/abc", link.URL)
}

func TestPayPalLink(t *testing.T) {
	id := uuid.New()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"A21","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/payments/payment", func(w http.ResponseWriter, r *http.Request) {
		var body paypalapi.PaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Transactions, 1)
		assert.Equal(t, "5.00", body.Transactions[0].Amount.Total)
		assert.Equal(t, "USD", body.Transactions[0].Amount.Currency)
		assert.Equal(t, paypaladapter.JoinCustom(id.String(), 15), body.Transactions[0].Custom)

		_, _ = w.Write([]byte(`{"id":"PAY-1","links":[{"rel":"self","href":"x"},{"rel":"approval_url","href":"https://paypal.example/approve"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	svc := newService(zap.NewNop(), testPacks(t), map[string]creator{
		adapters.ProviderPayPal: &paypalCreator{
			api:       paypalapi.NewClient(srv.URL, "id", "secret", nil),
			returnURL: "https://app.example/return",
		},
	})
	link, err := svc.CreateLink(context.Background(), "paypal", "15", id)
	require.NoError(t, err)
	assert.Equal(t, "https://paypal.example/approve", link.URL)
}

func TestCreateLinkRejections(t *testing.T) {
	svc := newService(zap.NewNop(), testPacks(t), map[string]creator{
		adapters.ProviderRazorpay:     newRazorpayClient("http://unused", "k", "s", "", nil),
		adapters.ProviderLemonSqueezy: newLemonClient("http://unused", "", "", "", nil),
		adapters.ProviderPayPal:       &paypalCreator{api: paypalapi.NewClient("http://unused", "id", "secret", nil), returnURL: "https://r"},
	})
	ctx := context.Background()

	_, err := svc.CreateLink(ctx, "stripe", "15", uuid.New())
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)

	_, err = svc.CreateLink(ctx, "lemonsqueezy", "15", uuid.New())
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotConfigured)

	_, err = svc.CreateLink(ctx, "razorpay", "999", uuid.New())
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPack)

	_, err = svc.CreateLink(ctx, "paypal", "5", uuid.New())
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPack)
}

func TestProviderFailureIsCheckoutFailed(t *testing.T) {
	base := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
	})
	svc := newService(zap.NewNop(), testPacks(t), map[string]creator{
		adapters.ProviderRazorpay: newRazorpayClient(base, "k", "s", "", nil),
	})

	_, err := svc.CreateLink(context.Background(), "razorpay", "15", uuid.New())
	require.ErrorIs(t, err, paymentdomain.ErrCheckoutFailed)
	assert.Contains(t, err.Error(), "amount too small")
}

func TestFormatMinorUnits(t *testing.T) {
	assert.Equal(t, "5.00", formatMinorUnits(500))
	assert.Equal(t, "20.05", formatMinorUnits(2005))
	assert.Equal(t, "0.99", formatMinorUnits(99))
}
