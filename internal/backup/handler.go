package backup

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"prefect-attendance/internal/attendance"
)

// uploads larger than this are rejected before parsing
const maxUpload = 32 << 20

type Handler struct{ svc *Service }

type ExportRequest struct {
	Mode       string `json:"mode"` // plain | xor | sealed
	Passphrase string `json:"passphrase"`
}

type RestoreResponse struct {
	Restored int `json:"restored"`
}

type InspectResponse struct {
	Version    string     `json:"version"`
	SystemInfo SystemInfo `json:"systemInfo"`
	Records    int        `json:"records"`
	Checksum   string     `json:"checksum"`
}

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/backup/export", h.Export)
	r.POST("/backup/validate", h.Validate)
	r.POST("/backup/restore", h.Restore)

	// files kept on the server
	r.POST("/backup/local", h.WriteLocal)
	r.GET("/backup/history", h.History)
	r.GET("/backup/local/:file", h.DownloadLocal)
}

// POST /backup/export
func (h *Handler) Export(c *gin.Context) {
	var req ExportRequest
	_ = c.ShouldBindJSON(&req)
	mode, err := ParseMode(req.Mode)
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	b, env, err := h.svc.Export(c.Request.Context(), mode, req.Passphrase)
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	name := filePrefix + env.Timestamp.Format("20060102T150405Z") + mode.Ext()
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	ct := "application/octet-stream"
	if mode == ModePlain {
		ct = "application/json"
	}
	c.Data(http.StatusOK, ct, b)
}

// POST /backup/validate (multipart: file, passphrase)
func (h *Handler) Validate(c *gin.Context) {
	raw, ok := readUpload(c)
	if !ok {
		return
	}
	env, d, err := h.svc.Inspect(raw, c.PostForm("passphrase"))
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, InspectResponse{
		Version:    env.Version,
		SystemInfo: env.SystemInfo,
		Records:    len(d.Records),
		Checksum:   env.Checksum,
	})
}

// POST /backup/restore (multipart: file, passphrase, confirm=true)
func (h *Handler) Restore(c *gin.Context) {
	if c.PostForm("confirm") != "true" {
		c.JSON(http.StatusBadRequest, attendance.ErrorBody(attendance.ErrValidation("restoring replaces all records and requires confirm=true")))
		return
	}
	raw, ok := readUpload(c)
	if !ok {
		return
	}
	n, err := h.svc.Import(c.Request.Context(), raw, c.PostForm("passphrase"))
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, RestoreResponse{Restored: n})
}

// POST /backup/local
func (h *Handler) WriteLocal(c *gin.Context) {
	e, err := h.svc.WriteLocal(c.Request.Context())
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	c.JSON(http.StatusCreated, e)
}

// GET /backup/history
func (h *Handler) History(c *gin.Context) {
	items, err := h.svc.History(c.Request.Context())
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GET /backup/local/:file
func (h *Handler) DownloadLocal(c *gin.Context) {
	name := c.Param("file")
	b, err := h.svc.ReadLocal(name)
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/octet-stream", b)
}

func readUpload(c *gin.Context) ([]byte, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, attendance.ErrorBody(attendance.ErrValidation("file is required")))
		return nil, false
	}
	if fh.Size > maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, attendance.ErrorBody(attendance.ErrValidation("file is too large")))
		return nil, false
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, attendance.ErrorBody(attendance.ErrValidation("file is unreadable")))
		return nil, false
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, attendance.ErrorBody(attendance.ErrValidation("file is unreadable")))
		return nil, false
	}
	return raw, true
}
