package qrpass

import "prefect-attendance/internal/attendance"

// ===== Requests =====
type BadgeRequest struct {
	PrefectNumber string `json:"prefectNumber" form:"prefect_number" binding:"required"`
	Role          string `json:"role" form:"role" binding:"required"`
}

// SheetRequest: /qr/sheet
type SheetRequest struct {
	Badges []SheetEntry `json:"badges" binding:"required"`
	Size   int          `json:"size"`
}

type SheetEntry struct {
	Checked       bool   `json:"checked"`
	PrefectNumber string `json:"prefectNumber"`
	Role          string `json:"role"`
}

type ScanRequest struct {
	Text string `json:"text" binding:"required"`
}

// ===== Responses =====
type BadgeResponse struct {
	Payload Payload `json:"payload"`
	// Text is exactly what the QR code encodes.
	Text string `json:"text"`
}

type SheetResponse struct {
	Badges []SheetBadge `json:"badges"`
}

type SheetBadge struct {
	PrefectNumber string `json:"prefectNumber"`
	Role          string `json:"role"`
	Label         string `json:"label"`
	Image         string `json:"image"`
}

type ScanResponse struct {
	Record attendance.Record `json:"record"`
	Status string            `json:"status"`
}
