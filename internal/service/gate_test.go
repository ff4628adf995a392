package service

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/domainerr"
	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
)

func (s *engineSuite) TestVerifyEntryAdmitsOnce() {
	a := s.attendee("asha@example.com")
	admittedAt := s.clock.Now()

	first, err := s.svc.VerifyEntry(s.ctx, a.ID, "gate-north")
	s.Require().NoError(err)
	s.Equal(model.EntryAllowed, first.Decision)
	s.Equal(1, first.ScanCount)
	s.Require().NotNil(first.Attendee)
	s.Equal(a.Email, first.Attendee.Email)
	s.True(first.Attendee.IsAdmitted)
	s.Equal(admittedAt, first.FirstAllowed)

	s.clock.Advance(10 * time.Minute)
	second, err := s.svc.VerifyEntry(s.ctx, a.ID, "gate-south")
	s.Require().NoError(err)
	s.Equal(model.EntryDenied, second.Decision)
	s.Equal(2, second.ScanCount)
	s.Nil(second.Attendee)
	s.Equal(admittedAt, second.FirstAllowed)
	s.Equal(admittedAt.Add(10*time.Minute), second.ScannedAt)

	got, err := s.svc.GetAttendee(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal([]model.ScanEntry{
		{ScannerID: "gate-north", At: admittedAt, Outcome: model.ScanAllowed},
		{ScannerID: "gate-south", At: admittedAt.Add(10 * time.Minute), Outcome: model.ScanDenied},
	}, got.ScanHistory)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.EntryScans.WithLabelValues("allowed")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.EntryScans.WithLabelValues("denied")))
}

func (s *engineSuite) TestVerifyEntryRejections() {
	_, err := s.svc.VerifyEntry(s.ctx, "missing", "gate-north")
	s.requireReason(err, domainerr.UnknownAttendee)

	_, err = s.svc.VerifyEntry(s.ctx, " ", "gate-north")
	s.requireReason(err, domainerr.InvalidInput)

	a := s.attendee("asha@example.com")
	_, err = s.svc.VerifyEntry(s.ctx, a.ID, "")
	s.requireReason(err, domainerr.InvalidInput)
}

func (s *engineSuite) TestConcurrentScansAdmitExactlyOnce() {
	a := s.attendee("asha@example.com")

	const n = 24
	var wg sync.WaitGroup
	results := make([]*model.EntryResult, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = s.svc.VerifyEntry(s.ctx, a.ID, "gate-"+string(rune('a'+i)))
		}()
	}
	wg.Wait()

	allowed := 0
	for i := range n {
		s.Require().NoError(errs[i])
		if results[i].Decision == model.EntryAllowed {
			allowed++
		}
	}
	s.Equal(1, allowed)

	got, err := s.svc.GetAttendee(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(n, got.ScanCount)
	s.Len(got.ScanHistory, n)
	s.True(got.IsAdmitted)
}
