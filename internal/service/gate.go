package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/domainerr"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/repository"
)

// VerifyEntry records a credential scan at the gate. The first scan of an attendee
// is Allowed; every later scan is Denied. Both are successful results and both
// append to the attendee's scan history.
func (s *Service) VerifyEntry(ctx context.Context, attendeeID, scannerID string) (res *model.EntryResult, err error) {
	ctx, span := s.startSpan(ctx, "VerifyEntry",
		attribute.String("attendee.id", attendeeID), attribute.String("scanner.id", scannerID))
	defer func() { endSpan(span, err) }()

	attendeeID = strings.TrimSpace(attendeeID)
	scannerID = strings.TrimSpace(scannerID)
	if attendeeID == "" {
		return nil, domainerr.New(domainerr.InvalidInput, "attendee id is required")
	}
	if scannerID == "" {
		return nil, domainerr.New(domainerr.InvalidInput, "scanner id is required")
	}

	at := s.now()
	attendee, outcome, err := s.attendees.RecordScan(ctx, attendeeID, scannerID, at)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domainerr.For(domainerr.UnknownAttendee, attendeeID, "attendee not found")
		}
		return nil, storeErr(err, "record scan")
	}

	res = &model.EntryResult{ScanCount: attendee.ScanCount, ScannedAt: at}
	res.FirstAllowed, _ = attendee.FirstAdmission()
	if outcome == model.ScanAllowed {
		res.Decision = model.EntryAllowed
		res.Attendee = attendee
	} else {
		res.Decision = model.EntryDenied
	}

	s.metrics.IncScan(string(res.Decision))
	s.logger.InfoContext(ctx, "entry scanned",
		"attendee_id", attendeeID, "scanner_id", scannerID, "decision", res.Decision, "scan_count", res.ScanCount)
	return res, nil
}
