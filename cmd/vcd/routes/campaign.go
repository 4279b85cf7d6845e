package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/vcdist/vcd/cmd/vcd/container"
	"github.com/vcdist/vcd/cmd/vcd/handlers"
	commonmw "github.com/vcdist/vcd/common/middleware"
)

// RegisterCampaignRoutes registers campaign CRUD, claim and history routes
func RegisterCampaignRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewCampaignHandler(c.CampaignService)
	claims := handlers.NewClaimHandler(c.Arbiter, c.Verifier)
	throttle := commonmw.UserRateLimitMiddleware(c.RateLimiter, c.ReceivePolicy)

	campaigns := e.Group("/api/v1/virtual_content")
	{
		campaigns.POST("", h.Create)                             // POST /api/v1/virtual_content
		campaigns.GET("", h.List)                                // GET /api/v1/virtual_content?limit=&offset=
		campaigns.GET("/:id", h.Get)                             // GET /api/v1/virtual_content/{id}
		campaigns.PATCH("/:id", h.Update)                        // PATCH /api/v1/virtual_content/{id}
		campaigns.DELETE("/:id", h.Delete)                       // DELETE /api/v1/virtual_content/{id}
		campaigns.POST("/:id/items", h.ExtendItems)              // POST /api/v1/virtual_content/{id}/items
		campaigns.POST("/:id/rebuild", h.Rebuild)                // POST /api/v1/virtual_content/{id}/rebuild
		campaigns.POST("/:id/receive", claims.Receive, throttle) // POST /api/v1/virtual_content/{id}/receive
		campaigns.GET("/:id/receive_history", h.History)         // GET /api/v1/virtual_content/{id}/receive_history
	}

	e.GET("/api/v1/receive_history", h.Received) // GET /api/v1/receive_history
}

// RegisterStatsRoutes registers the leaderboard route
func RegisterStatsRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewStatsHandler(c.Stats)

	e.GET("/api/v1/stats", h.List) // GET /api/v1/stats
}
