package server

import (
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tryon/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/tryon/internal/payment/domain"
	"go.uber.org/zap"
)

const maxWebhookBytes = 1 << 20

// HandlePaymentWebhook answers 2xx for applied, duplicate and ignored
// deliveries so providers stop retrying them.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	if err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidPayload)
		return
	}

	status, err := s.webhooks.Ingest(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	logger.FromContext(c.Request.Context()).Info("payment webhook processed",
		zap.String("provider", provider),
		zap.String("status", string(status)),
	)
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (s *Server) CreateCheckout(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	pack := strings.TrimSpace(c.Query("pack"))
	if pack == "" {
		AbortWithError(c, paymentdomain.ErrInvalidPack)
		return
	}

	link, err := s.checkout.CreateLink(c.Request.Context(), c.Param("provider"), pack, identity.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

type packView struct {
	Code    string               `json:"code"`
	Label   string               `json:"label"`
	Credits int                  `json:"credits"`
	Prices  map[string]priceView `json:"prices"`
}

type priceView struct {
	Amount   int64  `json:"amount,omitempty"`
	Currency string `json:"currency,omitempty"`
}

func (s *Server) ListPacks(c *gin.Context) {
	packs := s.packs.All()
	out := make([]packView, 0, len(packs))
	for _, p := range packs {
		prices := make(map[string]priceView, len(p.Prices))
		for provider, price := range p.Prices {
			prices[provider] = priceView{Amount: price.Amount, Currency: price.Currency}
		}
		out = append(out, packView{Code: p.Code, Label: p.Label, Credits: p.Credits, Prices: prices})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Credits < out[j].Credits })
	c.JSON(http.StatusOK, gin.H{"data": out})
}
