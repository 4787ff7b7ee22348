package domain

import "errors"

var (
	ErrProviderNotFound      = errors.New("payment_provider_not_found")
	ErrProviderNotConfigured = errors.New("payment_provider_not_configured")
	ErrInvalidConfig         = errors.New("invalid_provider_config")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrUnresolvedIdentity    = errors.New("unresolved_identity")
	ErrEventInFlight         = errors.New("event_in_flight")
	ErrInvalidPack           = errors.New("invalid_pack")
	ErrCheckoutFailed        = errors.New("checkout_failed")
)
