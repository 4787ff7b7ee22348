package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	creditdomain "github.com/smallbiznis/tryon/internal/credit/domain"
)

type creditsResponse struct {
	DeviceID       string `json:"device_id"`
	Credits        int64  `json:"credits"`
	CompletedTries int64  `json:"completed_tries"`
	Reserved       bool   `json:"reserved"`
	FreeUsed       bool   `json:"free_used"`
}

func newCreditsResponse(balance creditdomain.Balance, freeUsed bool) creditsResponse {
	return creditsResponse{
		DeviceID:       balance.IdentityID.String(),
		Credits:        balance.Balance,
		CompletedTries: balance.CompletedSpendCount,
		Reserved:       balance.Reserved,
		FreeUsed:       freeUsed,
	}
}

func (s *Server) GetCredits(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	balance, err := s.ledger.Balance(c.Request.Context(), identity.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCreditsResponse(balance, identity.FreeGrantUsed))
}

// GetCreditHistory lists the newest journal rows of the caller's ledger.
func (s *Server) GetCreditHistory(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		limit = parsed
	}

	history, err := s.ledger.History(c.Request.Context(), identity.ID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": history})
}

func (s *Server) ReserveCredit(c *gin.Context) {
	s.ledgerStep(c, s.ledger.Spend)
}

func (s *Server) CommitCredit(c *gin.Context) {
	s.ledgerStep(c, s.ledger.Commit)
}

func (s *Server) RefundCredit(c *gin.Context) {
	s.ledgerStep(c, s.ledger.Refund)
}

func (s *Server) ledgerStep(c *gin.Context, step func(context.Context, uuid.UUID) (creditdomain.Balance, error)) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	balance, err := step(c.Request.Context(), identity.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCreditsResponse(balance, identity.FreeGrantUsed))
}

type unlockFreeRequest struct {
	Email string `json:"email"`
}

func (s *Server) UnlockFree(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req unlockFreeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	balance, err := s.abuse.GrantFree(c.Request.Context(), identity.ID, req.Email)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCreditsResponse(balance, true))
}
