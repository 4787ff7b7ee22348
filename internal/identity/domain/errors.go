package domain

import "errors"

var (
	ErrIdentityNotFound = errors.New("identity_not_found")
	ErrInvalidReference = errors.New("invalid_identity_reference")
	ErrTokenInvalid     = errors.New("credential_token_invalid")
	ErrTokenExpired     = errors.New("credential_token_expired")
)
