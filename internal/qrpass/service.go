package qrpass

import (
	"context"
	"encoding/base64"

	"go.uber.org/zap"

	"prefect-attendance/internal/attendance"
)

type Service struct {
	issuer *Issuer
	store  *attendance.Store
	policy attendance.Policy
	log    *zap.Logger
}

func NewService(issuer *Issuer, store *attendance.Store, policy attendance.Policy, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{issuer: issuer, store: store, policy: policy, log: log}
}

// ===== badges =====

func (s *Service) Badge(req BadgeRequest) (BadgeResponse, error) {
	p, err := s.issuer.Issue(req.PrefectNumber, req.Role)
	if err != nil {
		return BadgeResponse{}, err
	}
	text, err := Encode(p)
	if err != nil {
		return BadgeResponse{}, err
	}
	return BadgeResponse{Payload: p, Text: text}, nil
}

func (s *Service) BadgePNG(req BadgeRequest, size int) ([]byte, error) {
	p, err := s.issuer.Issue(req.PrefectNumber, req.Role)
	if err != nil {
		return nil, err
	}
	return PNG(p, size)
}

// Sheet renders every checked entry as a PNG data URL so a page can lay out a
// printable badge sheet.
func (s *Service) Sheet(req SheetRequest) (SheetResponse, error) {
	out := SheetResponse{Badges: []SheetBadge{}}
	for _, e := range req.Badges {
		if !e.Checked {
			continue
		}
		p, err := s.issuer.Issue(e.PrefectNumber, e.Role)
		if err != nil {
			return SheetResponse{}, err
		}
		png, err := PNG(p, req.Size)
		if err != nil {
			return SheetResponse{}, err
		}
		out.Badges = append(out.Badges, SheetBadge{
			PrefectNumber: p.PrefectNumber,
			Role:          p.Role,
			Label:         attendance.Role(p.Role).LongName() + " #" + p.PrefectNumber,
			Image:         "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		})
	}
	if len(out.Badges) == 0 {
		return SheetResponse{}, attendance.ErrValidation("no badges selected")
	}
	s.log.Info("badge sheet rendered", zap.String("op", "sheet"), zap.Int("badges", len(out.Badges)))
	return out, nil
}

// ===== scanning =====

// Scan verifies a scanned badge, marks attendance now and remembers the scan.
func (s *Service) Scan(ctx context.Context, text string) (ScanResponse, error) {
	p, err := Decode(text)
	if err != nil {
		return ScanResponse{}, err
	}
	role, err := s.issuer.Verify(p)
	if err != nil {
		s.log.Warn("badge rejected", zap.String("op", "scan"), zap.String("code", string(attendance.CodeOf(err))))
		return ScanResponse{}, err
	}

	rec, err := s.store.Mark(ctx, p.PrefectNumber, role, nil)
	if err != nil {
		return ScanResponse{}, err
	}
	if err := s.store.UpdateMeta(ctx, func(m *attendance.Meta) {
		m.AddScan(attendance.ScanEntry{
			PrefectNumber: rec.PrefectNumber,
			Role:          rec.Role,
			RecordID:      rec.ID,
			ScannedAt:     rec.Timestamp,
		})
	}); err != nil {
		// the mark itself is durable
		s.log.Warn("scan history not saved", zap.String("op", "scan"), zap.Error(err))
	}
	return ScanResponse{Record: rec, Status: s.policy.Status(rec.Timestamp)}, nil
}

// Scans returns the recent scan history, newest first.
func (s *Service) Scans(ctx context.Context) ([]attendance.ScanEntry, error) {
	m, err := s.store.Meta(ctx)
	if err != nil {
		return nil, err
	}
	if m.ScanHistory == nil {
		return []attendance.ScanEntry{}, nil
	}
	return m.ScanHistory, nil
}
