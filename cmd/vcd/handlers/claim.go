package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vcdist/vcd/cmd/vcd/middleware"
	"github.com/vcdist/vcd/cmd/vcd/models"
	"github.com/vcdist/vcd/cmd/vcd/service"
)

// Claimer runs one claim attempt
type Claimer interface {
	Claim(ctx context.Context, req service.ClaimRequest) (*models.ClaimRecord, error)
}

// ClaimHandler handles the receive endpoint
type ClaimHandler struct {
	claimer  Claimer
	verifier service.HumanVerifier
}

// NewClaimHandler creates a new claim handler
func NewClaimHandler(claimer Claimer, verifier service.HumanVerifier) *ClaimHandler {
	return &ClaimHandler{
		claimer:  claimer,
		verifier: verifier,
	}
}

// Receive claims one item for the caller
// POST /api/v1/virtual_content/:id/receive
func (h *ClaimHandler) Receive(c echo.Context) error {
	ctx := c.Request().Context()

	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}
	id, err := campaignID(c)
	if err != nil {
		return err
	}

	ip := c.RealIP()
	verified, err := h.verifier.Verify(ctx, username, ip)
	if err != nil {
		return err
	}

	rec, err := h.claimer.Claim(ctx, service.ClaimRequest{
		CampaignID:    id,
		User:          service.Identity{Username: username, TrustLevel: middleware.GetTrustLevel(c)},
		ClientIP:      ip,
		Headers:       snapshotHeaders(c.Request().Header),
		HumanVerified: verified,
	})
	if errors.Is(err, service.ErrSameIPReceivedBefore) && rec != nil {
		status, body := classify(err)
		body.ClaimID = &rec.ID
		return c.JSON(status, body)
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"id": rec.ID,
	})
}

// snapshotHeaders flattens request headers for the claim record, without cookies
func snapshotHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if k == "Cookie" {
			continue
		}
		out[k] = strings.Join(v, ", ")
	}
	return out
}
