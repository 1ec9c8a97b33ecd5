package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apierrors "github.com/reputul/reputul-backend/internal/errors"
	"github.com/reputul/reputul-backend/internal/gate"
	"github.com/reputul/reputul-backend/internal/logging"
)

// handleGateInfo returns the landing-page context for a review link
func (s *APIServer) handleGateInfo(c *gin.Context) {
	requestID, _, ok := s.parseGateToken(c)
	if !ok {
		return
	}

	info, err := s.gate.Info(c.Request.Context(), requestID)
	if err != nil {
		if errors.Is(err, gate.ErrRequestNotFound) {
			respondError(c, apierrors.ErrRequestNotFoundError)
			return
		}
		logging.LogError(err, "server", "gate_info")
		respondError(c, apierrors.ErrInternalServerError)
		return
	}

	c.JSON(http.StatusOK, info)
}

// handleGateSubmit records a rating submission for a review link
func (s *APIServer) handleGateSubmit(c *gin.Context) {
	requestID, jti, ok := s.parseGateToken(c)
	if !ok {
		return
	}

	var body struct {
		Rating  int    `json:"rating" binding:"required"`
		Comment string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	decision, err := s.gate.Submit(c.Request.Context(), requestID, body.Rating, body.Comment)
	if err != nil {
		switch {
		case errors.Is(err, gate.ErrInvalidRating):
			respondError(c, apierrors.ErrInvalidRatingError)
		case errors.Is(err, gate.ErrAlreadyUsed):
			respondError(c, apierrors.ErrGateUsedError)
		case errors.Is(err, gate.ErrRequestNotFound):
			respondError(c, apierrors.ErrRequestNotFoundError)
		default:
			logging.LogError(err, "server", "gate_submit")
			respondError(c, apierrors.ErrInternalServerError)
		}
		return
	}

	s.gate.Tokens().Consume(c.Request.Context(), jti)

	c.JSON(http.StatusOK, decision)
}

func (s *APIServer) parseGateToken(c *gin.Context) (uuid.UUID, string, bool) {
	id, jti, err := s.gate.Tokens().Parse(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, apierrors.ErrInvalidGateTokenError)
		return uuid.Nil, "", false
	}
	return id, jti, true
}
