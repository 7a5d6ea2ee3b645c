package qrpass

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"prefect-attendance/internal/attendance"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/qr/badge", h.Badge)
	r.GET("/qr/badge.png", h.BadgePNG)
	r.POST("/qr/sheet", h.Sheet)
	r.POST("/qr/scan", h.Scan)
	r.GET("/qr/scans", h.Scans)
}

// POST /qr/badge
func (h *Handler) Badge(c *gin.Context) {
	var req BadgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, attendance.ErrorBody(attendance.ErrValidation("prefectNumber and role are required")))
		return
	}
	res, err := h.svc.Badge(req)
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /qr/badge.png?prefect_number=12&role=Head&size=256
func (h *Handler) BadgePNG(c *gin.Context) {
	var req BadgeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, attendance.ErrorBody(attendance.ErrValidation("prefect_number and role are required")))
		return
	}
	size := 0
	if v := c.Query("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, attendance.ErrorBody(attendance.ErrValidation("size must be a number")))
			return
		}
		size = n
	}
	png, err := h.svc.BadgePNG(req, size)
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// POST /qr/sheet
func (h *Handler) Sheet(c *gin.Context) {
	var req SheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, attendance.ErrorBody(attendance.ErrValidation("invalid json")))
		return
	}
	res, err := h.svc.Sheet(req)
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /qr/scan
func (h *Handler) Scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, attendance.ErrorBody(attendance.ErrValidation("text is required")))
		return
	}
	res, err := h.svc.Scan(c.Request.Context(), req.Text)
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	c.JSON(http.StatusCreated, res)
}

// GET /qr/scans
func (h *Handler) Scans(c *gin.Context) {
	items, err := h.svc.Scans(c.Request.Context())
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
