package attendance

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// records
	r.POST("/attendance", h.Mark)
	r.POST("/attendance/bulk", h.MarkBulk)
	r.GET("/attendance", h.List)
	r.DELETE("/attendance", h.Clear)
	r.POST("/attendance/cleanup", h.Cleanup)

	// stats
	r.GET("/stats/daily", h.DailyStats)
	r.GET("/stats/prefects/:prefect_number", h.PrefectStats)
	r.GET("/stats/roles", h.RoleDistribution)
	r.GET("/stats/timeseries", h.TimeSeries)
	r.GET("/roles", h.ListRoles)
}

// Mark godoc
// @Summary  Mark attendance for one prefect
// @Tags     attendance
// @Accept   json
// @Produce  json
// @Param    body body MarkRequest true "prefect number and role"
// @Success  201 {object} Record
// @Failure  400 {object} ErrorResponse
// @Router   /attendance [post]
func (h *Handler) Mark(c *gin.Context) {
	var req MarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorBody(ErrValidation("invalid json or missing required fields")))
		return
	}
	rec, err := h.svc.Mark(c.Request.Context(), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), ErrorBody(err))
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// MarkBulk godoc
// @Summary  Mark attendance for many prefects at once
// @Tags     attendance
// @Accept   json
// @Produce  json
// @Param    body body BulkRequest true "entries"
// @Success  200 {object} BulkResult
// @Router   /attendance/bulk [post]
func (h *Handler) MarkBulk(c *gin.Context) {
	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorBody(ErrValidation("invalid json")))
		return
	}
	res, err := h.svc.MarkBulk(c.Request.Context(), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /attendance?prefect_number=&date=
func (h *Handler) List(c *gin.Context) {
	q := ListQuery{PrefectNumber: c.Query("prefect_number"), Date: c.Query("date")}
	res, err := h.svc.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(ToHTTPStatus(err), ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// DELETE /attendance?confirm=true
func (h *Handler) Clear(c *gin.Context) {
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusBadRequest, ErrorBody(ErrValidation("clearing all records requires confirm=true")))
		return
	}
	if err := h.svc.Clear(c.Request.Context()); err != nil {
		c.JSON(ToHTTPStatus(err), ErrorBody(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /attendance/cleanup
func (h *Handler) Cleanup(c *gin.Context) {
	var req CleanupRequest
	// empty body means "use the configured retention"
	_ = c.ShouldBindJSON(&req)
	res, err := h.svc.Cleanup(c.Request.Context(), req.Days)
	if err != nil {
		c.JSON(ToHTTPStatus(err), ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /stats/daily?date=
func (h *Handler) DailyStats(c *gin.Context) {
	res, err := h.svc.DailyStats(c.Request.Context(), c.Query("date"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /stats/prefects/:prefect_number?recent=
func (h *Handler) PrefectStats(c *gin.Context) {
	recent, _ := strconv.Atoi(c.DefaultQuery("recent", "0"))
	res, err := h.svc.PrefectStats(c.Request.Context(), c.Param("prefect_number"), recent)
	if err != nil {
		c.JSON(ToHTTPStatus(err), ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /stats/roles?range=
func (h *Handler) RoleDistribution(c *gin.Context) {
	res, err := h.svc.RoleDistribution(c.Request.Context(), c.Query("range"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": res})
}

// GET /stats/timeseries?range=
func (h *Handler) TimeSeries(c *gin.Context) {
	res, err := h.svc.TimeSeries(c.Request.Context(), c.Query("range"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListRoles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"roles": Roles})
}
