package remotesync

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"prefect-attendance/internal/attendance"
)

type Handler struct {
	a    *Adapter
	keep int // descriptors kept by a prune without an explicit keep
}

type PruneRequest struct {
	Keep *int `json:"keep"`
}

type DownloadResponse struct {
	Items []attendance.Record `json:"items"`
	Total int                 `json:"total"`
}

func RegisterRoutes(r gin.IRoutes, a *Adapter, keep int) {
	if keep <= 0 {
		keep = DefaultKeepBackups
	}
	h := &Handler{a: a, keep: keep}

	r.GET("/sync/status", h.Status)
	r.POST("/sync/upload", h.Upload)
	r.GET("/sync/download", h.Preview)
	r.POST("/sync/download/apply", h.Apply)
	r.GET("/sync/history", h.History)
	r.POST("/sync/prune", h.Prune)
}

// GET /sync/status
func (h *Handler) Status(c *gin.Context) {
	st, err := h.a.Status(c.Request.Context())
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, st)
}

// POST /sync/upload
func (h *Handler) Upload(c *gin.Context) {
	res, err := h.a.Upload(c.Request.Context())
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /sync/download
// Shows what a download would restore without changing local data.
func (h *Handler) Preview(c *gin.Context) {
	recs, err := h.a.Download(c.Request.Context())
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, DownloadResponse{Items: recs, Total: len(recs)})
}

// POST /sync/download/apply?confirm=true
func (h *Handler) Apply(c *gin.Context) {
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusBadRequest, attendance.ErrorBody(attendance.ErrValidation("downloading replaces all local records and requires confirm=true")))
		return
	}
	ctx := c.Request.Context()
	recs, err := h.a.Download(ctx)
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	if err := h.a.ApplyDownload(ctx, recs); err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": len(recs)})
}

// GET /sync/history
func (h *Handler) History(c *gin.Context) {
	items, err := h.a.History(c.Request.Context())
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// POST /sync/prune
func (h *Handler) Prune(c *gin.Context) {
	var req PruneRequest
	_ = c.ShouldBindJSON(&req)
	keep := h.keep
	if req.Keep != nil {
		keep = *req.Keep
	}
	n, err := h.a.PruneRemoteHistory(c.Request.Context(), keep)
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n, "kept": keep})
}
