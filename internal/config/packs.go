package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Pack is a purchasable bundle of credits.
type Pack struct {
	Code    string               `mapstructure:"code"`
	Label   string               `mapstructure:"label"`
	Credits int                  `mapstructure:"credits"`
	Prices  map[string]PackPrice `mapstructure:"prices"`
}

// PackPrice is the provider-specific price of a pack. Amount is in minor units.
type PackPrice struct {
	Amount    int64  `mapstructure:"amount"`
	Currency  string `mapstructure:"currency"`
	VariantID string `mapstructure:"variant_id"`
}

func DefaultPacks() []Pack {
	return []Pack{
		{
			Code: "5", Label: "5 Try Pack", Credits: 5,
			Prices: map[string]PackPrice{
				"razorpay":     {Amount: 20000, Currency: "INR"},
				"paypal":       {Amount: 200, Currency: "USD"},
				"lemonsqueezy": {VariantID: os.Getenv("LEMON_VARIANT_5")},
			},
		},
		{
			Code: "15", Label: "15 Try Pack", Credits: 15,
			Prices: map[string]PackPrice{
				"razorpay":     {Amount: 50000, Currency: "INR"},
				"paypal":       {Amount: 500, Currency: "USD"},
				"lemonsqueezy": {VariantID: os.Getenv("LEMON_VARIANT_15")},
			},
		},
		{
			Code: "100", Label: "100 Try Pack", Credits: 100,
			Prices: map[string]PackPrice{
				"razorpay":     {Amount: 200000, Currency: "INR"},
				"paypal":       {Amount: 2000, Currency: "USD"},
				"lemonsqueezy": {VariantID: os.Getenv("LEMON_VARIANT_100")},
			},
		},
	}
}

// PackCatalog serves the current pack table and follows edits to the
// settings file.
type PackCatalog struct {
	current atomic.Value // holds map[string]Pack
}

func NewStaticPackCatalog(packs []Pack) (*PackCatalog, error) {
	table, err := indexPacks(packs)
	if err != nil {
		return nil, err
	}
	catalog := &PackCatalog{}
	catalog.current.Store(table)
	return catalog, nil
}

func NewPackCatalog(v *viper.Viper, log *zap.Logger) (*PackCatalog, error) {
	var packs []Pack
	if err := v.UnmarshalKey("packs", &packs); err != nil {
		return nil, err
	}
	catalog, err := NewStaticPackCatalog(packs)
	if err != nil {
		return nil, err
	}

	if v.ConfigFileUsed() == "" {
		return catalog, nil
	}

	log = log.Named("config.packs")
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated []Pack
		if err := v.UnmarshalKey("packs", &updated); err != nil {
			log.Warn("pack catalog reload failed", zap.Error(err))
			return
		}
		table, err := indexPacks(updated)
		if err != nil {
			log.Warn("invalid pack catalog ignored", zap.Error(err))
			return
		}
		catalog.current.Store(table)
		log.Info("pack catalog reloaded", zap.String("file", e.Name), zap.Int("packs", len(table)))
	})
	v.WatchConfig()

	return catalog, nil
}

func (c *PackCatalog) Lookup(code string) (Pack, bool) {
	table, _ := c.current.Load().(map[string]Pack)
	pack, ok := table[strings.TrimSpace(code)]
	return pack, ok
}

func (c *PackCatalog) All() []Pack {
	table, _ := c.current.Load().(map[string]Pack)
	out := make([]Pack, 0, len(table))
	for _, pack := range table {
		out = append(out, pack)
	}
	return out
}

func indexPacks(packs []Pack) (map[string]Pack, error) {
	if len(packs) == 0 {
		return nil, errors.New("packs cannot be empty")
	}
	table := make(map[string]Pack, len(packs))
	for _, pack := range packs {
		pack.Code = strings.TrimSpace(pack.Code)
		if pack.Code == "" {
			return nil, errors.New("pack code is required")
		}
		if pack.Credits <= 0 {
			return nil, fmt.Errorf("pack %s: credits must be positive", pack.Code)
		}
		if _, dup := table[pack.Code]; dup {
			return nil, fmt.Errorf("pack %s: duplicate code", pack.Code)
		}
		normalized := make(map[string]PackPrice, len(pack.Prices))
		for provider, price := range pack.Prices {
			price.Currency = strings.ToUpper(strings.TrimSpace(price.Currency))
			normalized[strings.ToLower(strings.TrimSpace(provider))] = price
		}
		pack.Prices = normalized
		table[pack.Code] = pack
	}
	return table, nil
}
