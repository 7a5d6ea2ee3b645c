package attendance

import "time"

type MarkRequest struct {
	PrefectNumber string     `json:"prefectNumber" binding:"required"`
	Role          string     `json:"role" binding:"required"`
	Timestamp     *time.Time `json:"timestamp,omitempty"` // manual entry; defaults to now
}

type BulkRequest struct {
	Entries []BulkEntry `json:"entries"`
}

type ListQuery struct {
	PrefectNumber string
	Date          string
}

type RecordResponse struct {
	Record
	Status    string `json:"status"`
	LocalTime string `json:"localTime"`
}

type ListResponse struct {
	Items []RecordResponse `json:"items"`
	Total int              `json:"total"`
}

type CleanupRequest struct {
	Days int `json:"days"`
}

type CleanupResponse struct {
	Removed       int `json:"removed"`
	RetentionDays int `json:"retentionDays"`
}

type TimeSeriesResponse struct {
	Range   string   `json:"range"`
	Buckets []Bucket `json:"buckets"`
}
