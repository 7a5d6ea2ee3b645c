// Package qrpass issues and verifies the QR badges prefects scan to mark
// attendance.
package qrpass

import (
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	qrcode "github.com/skip2/go-qrcode"

	"prefect-attendance/internal/attendance"
)

const (
	PayloadType = "prefect_attendance"
	SystemTag   = "prefect-attendance-system"

	DefaultPNGSize = 256
	maxPNGSize     = 2048
)

// Payload is the JSON carried by a badge.
type Payload struct {
	Type          string `json:"type"`
	Role          string `json:"role"`
	PrefectNumber string `json:"prefectNumber"`
	System        string `json:"system"`
	Integrity     string `json:"integrity"`
}

type claims struct {
	Role   string `json:"role"`
	System string `json:"sys"`
	jwt.RegisteredClaims
}

// Issuer signs and checks badge payloads with a shared HS256 secret.
type Issuer struct {
	secret []byte
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

func (i *Issuer) Configured() bool { return len(i.secret) > 0 }

func (i *Issuer) Issue(prefectNumber, role string) (Payload, error) {
	if !i.Configured() {
		return Payload{}, attendance.ErrValidation("qr secret is not configured")
	}
	n := strings.TrimSpace(prefectNumber)
	if n == "" {
		return Payload{}, attendance.ErrValidation("prefect number is required")
	}
	r, ok := attendance.ParseRole(role)
	if !ok {
		return Payload{}, attendance.ErrValidation("invalid role: " + role)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role:             string(r),
		System:           SystemTag,
		RegisteredClaims: jwt.RegisteredClaims{Subject: n},
	})
	sig, err := tok.SignedString(i.secret)
	if err != nil {
		return Payload{}, attendance.ErrInternal("sign badge", err)
	}
	return Payload{
		Type:          PayloadType,
		Role:          string(r),
		PrefectNumber: n,
		System:        SystemTag,
		Integrity:     sig,
	}, nil
}

// Encode renders p as the compact JSON string placed in the QR code.
func Encode(p Payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", attendance.ErrInternal("encode badge", err)
	}
	return string(b), nil
}

// Decode parses scanned text. It does not verify anything.
func Decode(text string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &p); err != nil {
		return Payload{}, attendance.ErrValidation("qr code is not a prefect badge")
	}
	return p, nil
}

// PNG renders p as a QR image of size×size pixels.
func PNG(p Payload, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultPNGSize
	}
	if size > maxPNGSize {
		return nil, attendance.ErrValidation("size is too large")
	}
	text, err := Encode(p)
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(text, qrcode.Medium, size)
	if err != nil {
		return nil, attendance.ErrInternal("render qr", err)
	}
	return png, nil
}

// Verify checks the tags and the signature, and that the signed claims match
// the visible fields. It returns the canonical role.
func (i *Issuer) Verify(p Payload) (attendance.Role, error) {
	if !i.Configured() {
		return "", attendance.ErrValidation("qr secret is not configured")
	}
	if p.Type != PayloadType || p.System != SystemTag {
		return "", attendance.ErrValidation("qr code is not a prefect badge")
	}
	role, ok := attendance.ParseRole(p.Role)
	if !ok {
		return "", attendance.ErrValidation("invalid role: " + p.Role)
	}
	if p.Integrity == "" {
		return "", attendance.ErrIntegrity("badge is not signed")
	}

	var c claims
	tok, err := jwt.ParseWithClaims(p.Integrity, &c, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return "", attendance.ErrIntegrity("badge signature is invalid")
	}
	if c.Subject != strings.TrimSpace(p.PrefectNumber) || c.Role != string(role) || c.System != SystemTag {
		return "", attendance.ErrIntegrity("badge fields do not match its signature")
	}
	return role, nil
}
