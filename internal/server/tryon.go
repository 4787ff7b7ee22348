package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tryon/internal/providers/synthesis"
)

const (
	defaultMaxImageBytes = 10 << 20
	multipartOverhead    = 1 << 20
	defaultUsageLimit    = 20
)

func (s *Server) TryOn(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	limit := s.maxImageBytes
	if limit <= 0 {
		limit = defaultMaxImageBytes
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	header, err := c.FormFile("person_image")
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if header.Size > limit {
		AbortWithError(c, synthesis.ErrImageTooLarge)
		return
	}
	file, err := header.Open()
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	defer file.Close()
	person, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if int64(len(person)) > limit {
		AbortWithError(c, synthesis.ErrImageTooLarge)
		return
	}

	garmentURL := strings.TrimSpace(c.PostForm("garment_url"))
	if garmentURL == "" {
		garmentURL = strings.TrimSpace(c.Query("garment_url"))
	}

	result, err := s.tryOn.Run(c.Request.Context(), identity.ID, person, garmentURL)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Try-on complete",
		"image_url":    result.ImageURL,
		"credits_left": result.Balance.Balance,
	})
}

func (s *Server) ListUsage(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	limit := defaultUsageLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		limit = parsed
	}

	records, err := s.usage.ListByIdentity(c.Request.Context(), identity.ID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}
