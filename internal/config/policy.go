package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	UnresolvedIdentityReject      = "reject"
	UnresolvedIdentityMaterialize = "materialize"
)

// Policy carries every tunable rule of the identity, credit, abuse and payment
// components. It is resolved once at startup and handed to constructors.
type Policy struct {
	Identity IdentityPolicy `mapstructure:"identity"`
	Credit   CreditPolicy   `mapstructure:"credit"`
	Abuse    AbusePolicy    `mapstructure:"abuse"`
	Payment  PaymentPolicy  `mapstructure:"payment"`
}

type IdentityPolicy struct {
	// OriginMatchWindow limits origin fallback matches to identities created
	// within the window. Zero disables the limit.
	OriginMatchWindow time.Duration `mapstructure:"origin_match_window"`
}

type CreditPolicy struct {
	Cooldown     time.Duration `mapstructure:"cooldown"`
	RefundWindow time.Duration `mapstructure:"refund_window"`
}

type AbusePolicy struct {
	OriginGrantThreshold int     `mapstructure:"origin_grant_threshold"`
	OriginAttemptRate    float64 `mapstructure:"origin_attempt_rate"`
	OriginAttemptBurst   int     `mapstructure:"origin_attempt_burst"`
}

type PaymentPolicy struct {
	UnresolvedIdentity string        `mapstructure:"unresolved_identity"`
	InFlightLockTTL    time.Duration `mapstructure:"in_flight_lock_ttl"`
}

func DefaultPolicy() Policy {
	return Policy{
		Credit: CreditPolicy{
			Cooldown:     60 * time.Second,
			RefundWindow: 5 * time.Minute,
		},
		Abuse: AbusePolicy{
			OriginGrantThreshold: 3,
			OriginAttemptRate:    0.2,
			OriginAttemptBurst:   5,
		},
		Payment: PaymentPolicy{
			UnresolvedIdentity: UnresolvedIdentityReject,
			InFlightLockTTL:    30 * time.Second,
		},
	}
}

// NewSettings opens the tryon.yml settings file. A missing file is not an
// error; defaults apply.
func NewSettings() (*viper.Viper, error) {
	v := viper.New()

	v.SetConfigName("tryon")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/tryon")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TRYON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("identity.origin_match_window", defaults.Identity.OriginMatchWindow)
	v.SetDefault("credit.cooldown", defaults.Credit.Cooldown)
	v.SetDefault("credit.refund_window", defaults.Credit.RefundWindow)
	v.SetDefault("abuse.origin_grant_threshold", defaults.Abuse.OriginGrantThreshold)
	v.SetDefault("abuse.origin_attempt_rate", defaults.Abuse.OriginAttemptRate)
	v.SetDefault("abuse.origin_attempt_burst", defaults.Abuse.OriginAttemptBurst)
	v.SetDefault("payment.unresolved_identity", defaults.Payment.UnresolvedIdentity)
	v.SetDefault("payment.in_flight_lock_ttl", defaults.Payment.InFlightLockTTL)
	v.SetDefault("packs", DefaultPacks())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return v, nil
}

func LoadPolicy(v *viper.Viper) (Policy, error) {
	var p Policy
	if err := v.Unmarshal(&p); err != nil {
		return Policy{}, err
	}
	p.Payment.UnresolvedIdentity = strings.ToLower(strings.TrimSpace(p.Payment.UnresolvedIdentity))
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (p Policy) Validate() error {
	if p.Credit.Cooldown < 0 {
		return errors.New("credit.cooldown cannot be negative")
	}
	if p.Credit.RefundWindow <= 0 {
		return errors.New("credit.refund_window must be positive")
	}
	if p.Abuse.OriginGrantThreshold <= 0 {
		return errors.New("abuse.origin_grant_threshold must be positive")
	}
	if p.Abuse.OriginAttemptRate < 0 || p.Abuse.OriginAttemptBurst < 0 {
		return errors.New("abuse origin attempt limits cannot be negative")
	}
	if p.Identity.OriginMatchWindow < 0 {
		return errors.New("identity.origin_match_window cannot be negative")
	}
	switch p.Payment.UnresolvedIdentity {
	case UnresolvedIdentityReject, UnresolvedIdentityMaterialize:
	default:
		return fmt.Errorf("payment.unresolved_identity %q is not one of reject|materialize", p.Payment.UnresolvedIdentity)
	}
	return nil
}
