package crontask

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pilling-app/pilling-core/internal/pkg/cron"
	"github.com/pilling-app/pilling-core/internal/pkg/pagination"
	"github.com/pilling-app/pilling-core/internal/pkg/response"
	"github.com/pilling-app/pilling-core/internal/pkg/taskqueue"
)

// Handler exposes the staff endpoints for scheduled jobs and the background
// task records they produce.
type Handler struct {
	sched *cron.Scheduler
	tasks *taskqueue.Service
}

func NewHandler(sched *cron.Scheduler, tasks *taskqueue.Service) *Handler {
	return &Handler{sched: sched, tasks: tasks}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, staffMW gin.HandlerFunc) {
	g := rg.Group("/cron", authMW, staffMW)
	g.GET("", h.list)
	g.GET("/:name", h.get)
	g.POST("/:name/run", h.run)

	t := rg.Group("/tasks", authMW, staffMW)
	t.GET("", h.listTasks)
	t.GET("/:id", h.getTask)
	t.DELETE("", h.deleteFinished)
}

func (h *Handler) list(c *gin.Context) {
	response.OK(c, h.sched.List())
}

func (h *Handler) get(c *gin.Context) {
	result, err := h.sched.GetTask(c.Param("name"))
	if err != nil {
		response.NotFound(c)
		return
	}
	response.OK(c, result)
}

// run triggers a job immediately. Execution is asynchronous; poll the get
// endpoint for the outcome.
func (h *Handler) run(c *gin.Context) {
	name := c.Param("name")
	if err := h.sched.Run(c.Request.Context(), name); err != nil {
		response.NotFound(c)
		return
	}
	response.OK(c, gin.H{"message": "작업이 시작되었습니다.", "name": name})
}

func (h *Handler) listTasks(c *gin.Context) {
	q := pagination.FromContext(c)

	var typeFilter *string
	if t := c.Query("type"); t != "" {
		typeFilter = &t
	}
	var statusFilter *taskqueue.TaskStatus
	if s := c.Query("status"); s != "" {
		st := taskqueue.TaskStatus(s)
		statusFilter = &st
	}

	tasks, total, err := h.tasks.List(c.Request.Context(), q.Page, q.Size, typeFilter, statusFilter)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, tasks, pagination.Build(total, q))
}

// deleteFinished clears completed and failed task records, optionally only
// those created before a unix millisecond timestamp.
func (h *Handler) deleteFinished(c *gin.Context) {
	var beforeMS int64
	if v := c.Query("before"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.BadRequest(c, "before는 밀리초 타임스탬프여야 합니다.")
			return
		}
		beforeMS = parsed
	}

	if err := h.tasks.DeleteFinished(c.Request.Context(), beforeMS); err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"message": "완료된 작업 기록이 삭제되었습니다."})
}

func (h *Handler) getTask(c *gin.Context) {
	task, err := h.tasks.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if task == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, task)
}
