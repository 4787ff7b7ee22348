package checkout

import (
	"context"
	"fmt"

	"github.com/smallbiznis/tryon/internal/config"
	paypaladapter "github.com/smallbiznis/tryon/internal/payment/adapters/paypal"
	paymentdomain "github.com/smallbiznis/tryon/internal/payment/domain"
	paypalapi "github.com/smallbiznis/tryon/internal/providers/paypal"
)

type paypalCreator struct {
	api       *paypalapi.Client
	returnURL string
}

func (c *paypalCreator) configured() bool {
	return c.api != nil && c.api.Configured() && c.returnURL != ""
}

func (c *paypalCreator) create(ctx context.Context, pack config.Pack, price config.PackPrice, identityRef string) (string, error) {
	if price.Amount <= 0 || price.Currency == "" {
		return "", paymentdomain.ErrInvalidPack
	}
	payment, err := c.api.CreatePayment(ctx, paypalapi.PaymentRequest{
		Intent: "sale",
		Payer:  paypalapi.Payer{PaymentMethod: "paypal"},
		RedirectURLs: paypalapi.RedirectURLs{
			ReturnURL: c.returnURL,
			CancelURL: c.returnURL,
		},
		Transactions: []paypalapi.Transaction{{
			Amount:      paypalapi.Amount{Total: formatMinorUnits(price.Amount), Currency: price.Currency},
			Description: fmt.Sprintf("%d AI Try-On Credits", pack.Credits),
			Custom:      paypaladapter.JoinCustom(identityRef, int64(pack.Credits)),
		}},
	})
	if err != nil {
		return "", failed("paypal: %v", err)
	}
	url := payment.ApprovalURL()
	if url == "" {
		return "", failed("paypal: approval url missing")
	}
	return url, nil
}

func formatMinorUnits(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}
