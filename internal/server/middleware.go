package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	identitydomain "github.com/smallbiznis/tryon/internal/identity/domain"
	obscontext "github.com/smallbiznis/tryon/internal/observability/context"
)

const (
	HeaderDeviceToken       = "X-Device-Token"
	HeaderDeviceFingerprint = "X-Device-Fingerprint"

	contextResolutionKey = "identity_resolution"
)

// ResolveIdentity attaches exactly one identity to the request. A freshly
// created identity gets its credential token in the response header.
func (s *Server) ResolveIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		signals := identitydomain.Signals{
			CredentialToken: bearerToken(c.GetHeader("Authorization")),
			Fingerprint:     strings.TrimSpace(c.GetHeader(HeaderDeviceFingerprint)),
			Origin:          c.ClientIP(),
		}

		resolution, err := s.resolver.Resolve(c.Request.Context(), signals)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		if resolution.IssuedToken != "" {
			c.Header(HeaderDeviceToken, resolution.IssuedToken)
		}
		c.Set(contextResolutionKey, resolution)
		c.Request = c.Request.WithContext(
			obscontext.WithIdentityID(c.Request.Context(), resolution.Identity.ID.String()),
		)
		c.Next()
	}
}

func resolutionFrom(c *gin.Context) *identitydomain.Resolution {
	v, ok := c.Get(contextResolutionKey)
	if !ok {
		return nil
	}
	resolution, _ := v.(*identitydomain.Resolution)
	return resolution
}

// currentIdentity aborts the request when the middleware did not run.
func currentIdentity(c *gin.Context) (*identitydomain.Identity, bool) {
	resolution := resolutionFrom(c)
	if resolution == nil || resolution.Identity == nil {
		AbortWithError(c, ErrUnauthorized)
		return nil, false
	}
	return resolution.Identity, true
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
