package search

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pilling-app/pilling-core/internal/modules/directory"
	"github.com/pilling-app/pilling-core/internal/pkg/response"
)

const errDirectoryDown = "외부 서비스 연결에 실패했습니다. 잠시 후 다시 시도해주세요."

// Handler exposes the medicine search endpoint.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.GET("/search/medicines", authMW, h.search)
}

// search handles GET /search/medicines?itemName=&efcyQesitm=&type=basic|detail.
// When both parameters are present the name takes precedence.
func (h *Handler) search(c *gin.Context) {
	itemName := c.Query("itemName")
	efcy := c.Query("efcyQesitm")
	shape := c.DefaultQuery("type", ShapeBasic)
	if shape != ShapeDetail {
		shape = ShapeBasic
	}

	if itemName == "" && efcy == "" {
		response.BadRequest(c, "약 이름과 증상 정보 중 하나는 제공해야 합니다.")
		return
	}

	var (
		result []Medicine
		err    error
	)
	if itemName != "" {
		result, err = h.svc.SearchByName(c.Request.Context(), itemName, shape)
	} else {
		result, err = h.svc.SearchBySymptom(c.Request.Context(), efcy, shape)
	}

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"data": result})
	case errors.Is(err, ErrNotFoundByName), errors.Is(err, ErrNotFoundBySymptom):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, directory.ErrUnavailable):
		response.BadGateway(c, errDirectoryDown)
	default:
		response.InternalError(c, err)
	}
}
