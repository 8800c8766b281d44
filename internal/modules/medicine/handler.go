package medicine

import (
	"github.com/gin-gonic/gin"
	"github.com/pilling-app/pilling-core/internal/pkg/pagination"
	"github.com/pilling-app/pilling-core/internal/pkg/response"
)

// Handler exposes the cache admin endpoints.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, staffMW gin.HandlerFunc) {
	g := rg.Group("/medicines", authMW, staffMW)
	g.GET("/cache/stats", h.stats)
	g.GET("/cached", h.listCached)
}

// GET /medicines/cache/stats — cache row counts for monitoring
func (h *Handler) stats(c *gin.Context) {
	stats, err := h.svc.GetStats()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, stats)
}

// GET /medicines/cached?page=&size= — paginated cache listing
func (h *Handler) listCached(c *gin.Context) {
	q := pagination.FromContext(c)
	items, pag, err := h.svc.ListCached(q)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pag)
}
