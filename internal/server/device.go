package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	identitydomain "github.com/smallbiznis/tryon/internal/identity/domain"
)

type deviceResponse struct {
	DeviceID       string     `json:"device_id"`
	Credits        int64      `json:"credits"`
	FreeUsed       bool       `json:"free_used"`
	CompletedTries int64      `json:"completed_tries"`
	Source         string     `json:"source"`
	DeviceToken    string     `json:"device_token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

func (s *Server) InitDevice(c *gin.Context) {
	resolution := resolutionFrom(c)
	if resolution == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	identity := resolution.Identity
	resp := deviceResponse{
		DeviceID:       identity.ID.String(),
		Credits:        identity.Balance,
		FreeUsed:       identity.FreeGrantUsed,
		CompletedTries: identity.CompletedSpendCount,
		Source:         string(resolution.Source),
	}
	if resolution.Source == identitydomain.SourceCreated && resolution.IssuedToken != "" {
		expires := resolution.TokenExpiresAt
		resp.DeviceToken = resolution.IssuedToken
		resp.TokenExpiresAt = &expires
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ReissueToken(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	token, expires, err := s.resolver.Reissue(c.Request.Context(), identity.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header(HeaderDeviceToken, token)
	c.JSON(http.StatusOK, gin.H{
		"device_id":        identity.ID.String(),
		"device_token":     token,
		"token_expires_at": expires,
	})
}
