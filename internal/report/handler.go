package report

import (
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"prefect-attendance/internal/attendance"
	"prefect-attendance/internal/csvcodec"
)

const (
	maxUpload = 8 << 20

	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/export/csv", h.ExportCSV)
	r.GET("/export/xlsx", h.ExportXLSX)
	r.GET("/import/template", h.Template)
	r.POST("/import", h.Import)
}

// GET /export/csv?format=report|timestamps&bom=true
func (h *Handler) ExportCSV(c *gin.Context) {
	b, name, err := h.svc.ExportCSV(c.Request.Context(), c.Query("format"), c.Query("bom") == "true")
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	attachment(c, name)
	c.Data(http.StatusOK, contentTypeCSV, b)
}

// GET /export/xlsx
func (h *Handler) ExportXLSX(c *gin.Context) {
	b, name, err := h.svc.ExportXLSX(c.Request.Context())
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	attachment(c, name)
	c.Data(http.StatusOK, contentTypeXLSX, b)
}

// GET /import/template
func (h *Handler) Template(c *gin.Context) {
	attachment(c, "prefect-bulk-template.csv")
	c.Data(http.StatusOK, contentTypeCSV, csvcodec.Template())
}

// POST /import (multipart: file, kind=bulk|records, replace=true)
// Workbooks (.xlsx) are accepted for bulk imports.
func (h *Handler) Import(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, attendance.ErrorBody(attendance.ErrValidation("file is required")))
		return
	}
	if fh.Size > maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, attendance.ErrorBody(attendance.ErrValidation("file is too large")))
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, attendance.ErrorBody(attendance.ErrValidation("file is unreadable")))
		return
	}
	defer f.Close()

	kind := c.DefaultPostForm("kind", KindBulk)
	replace := c.PostForm("replace") == "true"
	res, err := h.importFile(c, f, fh, kind, replace)
	if err != nil {
		c.JSON(attendance.ToHTTPStatus(err), attendance.ErrorBody(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) importFile(c *gin.Context, f multipart.File, fh *multipart.FileHeader, kind string, replace bool) (ImportResult, error) {
	ctx := c.Request.Context()
	xlsx := strings.EqualFold(filepath.Ext(fh.Filename), ".xlsx")
	switch {
	case kind == KindBulk && xlsx:
		return h.svc.ImportBulkXLSX(ctx, f)
	case kind == KindBulk:
		return h.svc.ImportBulk(ctx, f)
	case kind == KindRecords && !xlsx:
		return h.svc.ImportRecords(ctx, f, replace)
	case kind == KindRecords:
		return ImportResult{}, attendance.ErrValidation("records imports must be csv")
	}
	return ImportResult{}, attendance.ErrValidation("unknown kind: " + kind)
}

func attachment(c *gin.Context, name string) {
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
}
