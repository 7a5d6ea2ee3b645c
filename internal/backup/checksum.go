package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Checksum is a 32-bit rolling string hash (h = h*31 + b) over the compact
// form of raw, printed as 8 hex digits. It detects accidental corruption only;
// anyone can recompute it after editing the data.
func Checksum(raw []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	var h uint32
	for _, b := range buf.Bytes() {
		h = h*31 + uint32(b)
	}
	return fmt.Sprintf("%08x", h), nil
}
