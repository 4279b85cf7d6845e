package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/vcdist/vcd/cmd/vcd/middleware"
	"github.com/vcdist/vcd/cmd/vcd/models"
	"github.com/vcdist/vcd/cmd/vcd/service"
)

const jsonPatchMIME = "application/json-patch+json"

// maxPatchBytes bounds PATCH bodies
const maxPatchBytes = 64 << 10

// CampaignManager is the campaign CRUD surface
type CampaignManager interface {
	Create(ctx context.Context, username string, req *service.CreateCampaignRequest) (*models.CampaignView, error)
	Get(ctx context.Context, id uuid.UUID, username string) (*models.CampaignView, error)
	List(ctx context.Context, username string, limit, offset int) (*models.Page[*models.Campaign], error)
	Update(ctx context.Context, id uuid.UUID, username string, patch []byte, kind service.PatchKind) (*models.CampaignView, error)
	Delete(ctx context.Context, id uuid.UUID, username string) error
	ExtendItems(ctx context.Context, id uuid.UUID, username string, contents []string) ([]int64, error)
	Rebuild(ctx context.Context, id uuid.UUID, username string) (int, error)
	History(ctx context.Context, id uuid.UUID, username string, limit, offset int) (*models.Page[*models.ClaimRecord], error)
	Received(ctx context.Context, username string, limit, offset int) (*models.Page[*models.ReceivedItem], error)
}

// CampaignHandler handles campaign and history requests
type CampaignHandler struct {
	campaigns CampaignManager
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaigns CampaignManager) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns}
}

// Create creates a campaign with its item batch
// POST /api/v1/virtual_content
func (h *CampaignHandler) Create(c echo.Context) error {
	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}

	var req service.CreateCampaignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	view, err := h.campaigns.Create(c.Request().Context(), username, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, view)
}

// List lists the caller's campaigns
// GET /api/v1/virtual_content?limit=20&offset=0
func (h *CampaignHandler) List(c echo.Context) error {
	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}
	limit, offset, err := pagination(c)
	if err != nil {
		return err
	}

	page, err := h.campaigns.List(c.Request().Context(), username, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// Get returns a campaign with its stock view
// GET /api/v1/virtual_content/:id
func (h *CampaignHandler) Get(c echo.Context) error {
	id, err := campaignID(c)
	if err != nil {
		return err
	}

	view, err := h.campaigns.Get(c.Request().Context(), id, middleware.GetUsername(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// Update patches the editable fields. application/json-patch+json bodies are
// RFC 6902 operations, anything else is an RFC 7386 merge patch.
// PATCH /api/v1/virtual_content/:id
func (h *CampaignHandler) Update(c echo.Context) error {
	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}
	id, err := campaignID(c)
	if err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPatchBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	kind := service.MergePatch
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), jsonPatchMIME) {
		kind = service.JSONPatch
	}

	view, err := h.campaigns.Update(c.Request().Context(), id, username, body, kind)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// Delete removes a campaign that has no claims
// DELETE /api/v1/virtual_content/:id
func (h *CampaignHandler) Delete(c echo.Context) error {
	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}
	id, err := campaignID(c)
	if err != nil {
		return err
	}

	if err := h.campaigns.Delete(c.Request().Context(), id, username); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ExtendItems appends items to a campaign
// POST /api/v1/virtual_content/:id/items
func (h *CampaignHandler) ExtendItems(c echo.Context) error {
	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}
	id, err := campaignID(c)
	if err != nil {
		return err
	}

	var req struct {
		Items []string `json:"items"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ids, err := h.campaigns.ExtendItems(c.Request().Context(), id, username, req.Items)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"added":    len(ids),
		"item_ids": ids,
	})
}

// Rebuild recomputes the stock queue from the ledger
// POST /api/v1/virtual_content/:id/rebuild
func (h *CampaignHandler) Rebuild(c echo.Context) error {
	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}
	id, err := campaignID(c)
	if err != nil {
		return err
	}

	n, err := h.campaigns.Rebuild(c.Request().Context(), id, username)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"remaining_stock": n,
	})
}

// History lists a campaign's claims
// GET /api/v1/virtual_content/:id/receive_history
func (h *CampaignHandler) History(c echo.Context) error {
	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}
	id, err := campaignID(c)
	if err != nil {
		return err
	}
	limit, offset, err := pagination(c)
	if err != nil {
		return err
	}

	page, err := h.campaigns.History(c.Request().Context(), id, username, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// Received lists the items the caller has claimed
// GET /api/v1/receive_history
func (h *CampaignHandler) Received(c echo.Context) error {
	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}
	limit, offset, err := pagination(c)
	if err != nil {
		return err
	}

	page, err := h.campaigns.Received(c.Request().Context(), username, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func campaignID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusNotFound, "campaign not found")
	}
	return id, nil
}

func pagination(c echo.Context) (int, int, error) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return 0, 0, err
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be an integer")
	}
	return n, nil
}
