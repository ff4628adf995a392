package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
)

// MemoryStore is an in-process Ledger Store. A single mutex covers all three
// collections so every operation is atomic, matching the Postgres guarantees.
type MemoryStore struct {
	Attendees     *MemoryAttendees
	Activities    *MemoryActivities
	Registrations *MemoryRegistrations
}

type memoryDB struct {
	mu            sync.RWMutex
	attendees     map[string]*model.Attendee
	emails        map[string]string
	activities    map[string]*model.Activity
	registrations map[string]*model.Registration
	byPair        map[pairKey]string
	byOrder       map[string]string
}

type pairKey struct {
	activityID string
	attendeeID string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	db := &memoryDB{
		attendees:     make(map[string]*model.Attendee),
		emails:        make(map[string]string),
		activities:    make(map[string]*model.Activity),
		registrations: make(map[string]*model.Registration),
		byPair:        make(map[pairKey]string),
		byOrder:       make(map[string]string),
	}
	return &MemoryStore{
		Attendees:     &MemoryAttendees{db: db},
		Activities:    &MemoryActivities{db: db},
		Registrations: &MemoryRegistrations{db: db},
	}
}

// MemoryAttendees implements the attendee store in memory.
type MemoryAttendees struct{ db *memoryDB }

func (s *MemoryAttendees) Create(_ context.Context, a *model.Attendee) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	key := model.NormalizeEmail(a.Email)
	if _, taken := s.db.emails[key]; taken {
		return ErrConflict
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if _, taken := s.db.attendees[a.ID]; taken {
		return ErrConflict
	}
	if a.RegisteredActivities == nil {
		a.RegisteredActivities = []string{}
	}
	stored := cloneAttendee(a)
	s.db.attendees[a.ID] = stored
	s.db.emails[key] = a.ID
	return nil
}

func (s *MemoryAttendees) GetByID(_ context.Context, id string) (*model.Attendee, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	a, ok := s.db.attendees[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAttendee(a), nil
}

func (s *MemoryAttendees) GetByEmail(_ context.Context, email string) (*model.Attendee, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	id, ok := s.db.emails[model.NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAttendee(s.db.attendees[id]), nil
}

func (s *MemoryAttendees) RecordScan(_ context.Context, attendeeID, scannerID string, at time.Time) (*model.Attendee, model.ScanOutcome, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	a, ok := s.db.attendees[attendeeID]
	if !ok {
		return nil, "", ErrNotFound
	}
	outcome := model.ScanDenied
	if !a.IsAdmitted {
		outcome = model.ScanAllowed
		a.IsAdmitted = true
		a.ScanCount = 1
	} else {
		a.ScanCount++
	}
	a.ScanHistory = append(a.ScanHistory, model.ScanEntry{ScannerID: scannerID, At: at, Outcome: outcome})
	return cloneAttendee(a), outcome, nil
}

// MemoryActivities implements the activity store in memory.
type MemoryActivities struct{ db *memoryDB }

func (s *MemoryActivities) Create(_ context.Context, a *model.Activity) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if _, taken := s.db.activities[a.ID]; taken {
		return ErrConflict
	}
	c := *a
	s.db.activities[a.ID] = &c
	return nil
}

func (s *MemoryActivities) GetByID(_ context.Context, id string) (*model.Activity, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	a, ok := s.db.activities[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *a
	return &c, nil
}

func (s *MemoryActivities) List(_ context.Context) ([]model.Activity, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := make([]model.Activity, 0, len(s.db.activities))
	for _, a := range s.db.activities {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryActivities) SetActive(_ context.Context, id string, active bool) (*model.Activity, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a, ok := s.db.activities[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Active = active
	c := *a
	return &c, nil
}

// MemoryRegistrations implements the registration store in memory.
type MemoryRegistrations struct{ db *memoryDB }

func (s *MemoryRegistrations) Create(_ context.Context, reg *model.Registration) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	key := pairKey{reg.ActivityID, reg.AttendeeID}
	if _, taken := s.db.byPair[key]; taken {
		return ErrConflict
	}
	if reg.OrderID != "" {
		if _, taken := s.db.byOrder[reg.OrderID]; taken {
			return ErrConflict
		}
	}
	if reg.ID == "" {
		reg.ID = uuid.New().String()
	}
	if reg.TeamMembers == nil {
		reg.TeamMembers = []model.TeamMember{}
	}
	reg.Version = 0
	reg.UpdatedAt = reg.CreatedAt
	s.db.registrations[reg.ID] = reg.Clone()
	s.db.byPair[key] = reg.ID
	if reg.OrderID != "" {
		s.db.byOrder[reg.OrderID] = reg.ID
	}
	if reg.Status == model.PaymentPaid {
		s.db.markRegistered(reg.AttendeeID, reg.ActivityID)
	}
	return nil
}

func (s *MemoryRegistrations) Get(_ context.Context, activityID, attendeeID string) (*model.Registration, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	reg, ok := s.db.get(activityID, attendeeID)
	if !ok {
		return nil, ErrNotFound
	}
	return reg.Clone(), nil
}

func (s *MemoryRegistrations) GetByOrderID(_ context.Context, orderID string) (*model.Registration, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	id, ok := s.db.byOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.db.registrations[id].Clone(), nil
}

func (s *MemoryRegistrations) ListByActivity(_ context.Context, activityID string) ([]*model.Registration, error) {
	return s.filter(func(r *model.Registration) bool { return r.ActivityID == activityID }), nil
}

func (s *MemoryRegistrations) ListByAttendee(_ context.Context, attendeeID string) ([]*model.Registration, error) {
	return s.filter(func(r *model.Registration) bool { return r.AttendeeID == attendeeID }), nil
}

func (s *MemoryRegistrations) ListTeamsWithMember(_ context.Context, email string) ([]*model.Registration, error) {
	email = model.NormalizeEmail(email)
	return s.filter(func(r *model.Registration) bool { return r.HasMember(email) }), nil
}

func (s *MemoryRegistrations) FindTeamBinding(_ context.Context, activityID, email string) (*model.Registration, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if reg := s.db.binding(activityID, model.NormalizeEmail(email), ""); reg != nil {
		return reg.Clone(), nil
	}
	return nil, ErrNotFound
}

func (s *MemoryRegistrations) Finalize(_ context.Context, activityID, attendeeID string, status model.PaymentStatus, at time.Time) (*model.Registration, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	reg, ok := s.db.get(activityID, attendeeID)
	if !ok {
		return nil, ErrNotFound
	}
	if reg.Status != model.PaymentPending {
		return reg.Clone(), ErrFinalized
	}
	reg.Status = status
	reg.UpdatedAt = at
	if status == model.PaymentPaid {
		s.db.markRegistered(attendeeID, activityID)
	}
	return reg.Clone(), nil
}

func (s *MemoryRegistrations) Rearm(_ context.Context, activityID, attendeeID, orderID string, amount int64, at time.Time) (*model.Registration, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	reg, ok := s.db.get(activityID, attendeeID)
	if !ok {
		return nil, ErrNotFound
	}
	if reg.Status != model.PaymentFailed {
		return nil, ErrFinalized
	}
	if _, taken := s.db.byOrder[orderID]; taken {
		return nil, ErrConflict
	}
	delete(s.db.byOrder, reg.OrderID)
	reg.Status = model.PaymentPending
	reg.OrderID = orderID
	reg.AmountCharged = amount
	reg.UpdatedAt = at
	s.db.byOrder[orderID] = reg.ID
	return reg.Clone(), nil
}

func (s *MemoryRegistrations) SaveTeam(_ context.Context, reg *model.Registration, added []string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	current, ok := s.db.registrations[reg.ID]
	if !ok {
		return ErrNotFound
	}
	for _, email := range added {
		if other := s.db.binding(reg.ActivityID, model.NormalizeEmail(email), reg.ID); other != nil {
			return &MemberConflictError{Email: email, LeaderID: other.AttendeeID}
		}
	}
	if current.Version != reg.Version {
		return ErrStale
	}
	current.TeamName = reg.TeamName
	current.TeamMembers = slices.Clone(reg.TeamMembers)
	current.Version++
	current.UpdatedAt = time.Now().UTC()
	reg.Version = current.Version
	reg.UpdatedAt = current.UpdatedAt
	return nil
}

func (s *MemoryRegistrations) filter(keep func(*model.Registration) bool) []*model.Registration {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []*model.Registration
	for _, r := range s.db.registrations {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Callers must hold db.mu.
func (db *memoryDB) get(activityID, attendeeID string) (*model.Registration, bool) {
	id, ok := db.byPair[pairKey{activityID, attendeeID}]
	if !ok {
		return nil, false
	}
	return db.registrations[id], true
}

// binding mirrors the Postgres binding predicate, skipping registration excludeID.
// Callers must hold db.mu.
func (db *memoryDB) binding(activityID, email, excludeID string) *model.Registration {
	for _, r := range db.registrations {
		if r.ActivityID != activityID || r.ID == excludeID {
			continue
		}
		if r.HasMember(email) || (r.IsLeader() && r.AttendeeEmail == email) {
			return r
		}
	}
	return nil
}

// Callers must hold db.mu.
func (db *memoryDB) markRegistered(attendeeID, activityID string) {
	a, ok := db.attendees[attendeeID]
	if !ok || slices.Contains(a.RegisteredActivities, activityID) {
		return
	}
	a.RegisteredActivities = append(a.RegisteredActivities, activityID)
}

func cloneAttendee(a *model.Attendee) *model.Attendee {
	c := *a
	c.ScanHistory = slices.Clone(a.ScanHistory)
	c.RegisteredActivities = slices.Clone(a.RegisteredActivities)
	if c.ScanHistory == nil {
		c.ScanHistory = []model.ScanEntry{}
	}
	if c.RegisteredActivities == nil {
		c.RegisteredActivities = []string{}
	}
	return &c
}
