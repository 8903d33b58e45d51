package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/clinic-booking-api/internal/models"
	"github.com/noah-isme/clinic-booking-api/internal/repository"
	"github.com/noah-isme/clinic-booking-api/pkg/jobs"
	"github.com/noah-isme/clinic-booking-api/pkg/timegrid"
)

// monday is 2026-03-02, a Monday; testNow sits the day before.
var (
	monday  = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	testNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
)

func fixedNow() time.Time { return testNow }

var createdTicks atomic.Int64

// nextCreatedAt hands out strictly increasing creation stamps so fakes order writes the way
// the repositories' clock does.
func nextCreatedAt() time.Time {
	return testNow.Add(time.Duration(createdTicks.Add(1)) * time.Millisecond)
}

func at(hour, minute int) time.Time {
	return monday.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type fakeUsers struct {
	users map[string]*models.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]*models.User{
		"t1": {ID: "t1", Role: models.RoleTherapist, Active: true},
		"t2": {ID: "t2", Role: models.RoleTherapist, Active: true},
		"p1": {ID: "p1", Role: models.RolePatient, Active: true},
		"p2": {ID: "p2", Role: models.RolePatient, Active: true},
		"a1": {ID: "a1", Role: models.RoleAdmin, Active: true},
	}}
}

func (f *fakeUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type fakeAvailabilityStore struct {
	mu         sync.Mutex
	templates  map[string]map[string][]timegrid.Interval
	exceptions map[string]*models.DayException
	lookups    int
	err        error
}

func newFakeAvailabilityStore() *fakeAvailabilityStore {
	return &fakeAvailabilityStore{
		templates:  make(map[string]map[string][]timegrid.Interval),
		exceptions: make(map[string]*models.DayException),
	}
}

func (f *fakeAvailabilityStore) GetWeeklyTemplate(ctx context.Context, therapistID string) (*models.WeeklyTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	days := make(map[string][]timegrid.Interval)
	for k, v := range f.templates[therapistID] {
		days[k] = v
	}
	return &models.WeeklyTemplate{TherapistID: therapistID, Days: days}, nil
}

func (f *fakeAvailabilityStore) GetWeekdayIntervals(ctx context.Context, therapistID, weekday string) ([]timegrid.Interval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	return f.templates[therapistID][weekday], nil
}

func (f *fakeAvailabilityStore) ReplaceWeeklyTemplate(ctx context.Context, tpl *models.WeeklyTemplate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templates[tpl.TherapistID] = tpl.Days
	return nil
}

func (f *fakeAvailabilityStore) FindException(ctx context.Context, therapistID, date string) (*models.DayException, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if exc, ok := f.exceptions[therapistID+"|"+date]; ok {
		cp := *exc
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeAvailabilityStore) UpsertException(ctx context.Context, exc *models.DayException) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if exc.ID == "" {
		exc.ID = "exc-" + exc.Date
	}
	cp := *exc
	f.exceptions[exc.TherapistID+"|"+exc.Date] = &cp
	return nil
}

func (f *fakeAvailabilityStore) DeleteException(ctx context.Context, therapistID, date string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := therapistID + "|" + date
	_, ok := f.exceptions[key]
	delete(f.exceptions, key)
	return ok, nil
}

type fakeBlockStore struct {
	mu     sync.Mutex
	blocks map[string]*models.AbsenceBlock
	seq    int
}

func newFakeBlockStore() *fakeBlockStore {
	return &fakeBlockStore{blocks: make(map[string]*models.AbsenceBlock)}
}

func (f *fakeBlockStore) FindCovering(ctx context.Context, therapistID string, from, to time.Time) (*models.AbsenceBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.blocks {
		if b.TherapistID == therapistID && !b.StartAt.After(to) && !b.EndAt.Before(from) {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeBlockStore) ExistsForRange(ctx context.Context, therapistID string, startAt, endAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.blocks {
		if b.TherapistID == therapistID && b.StartAt.Equal(startAt) && b.EndAt.Equal(endAt) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBlockStore) Create(ctx context.Context, block *models.AbsenceBlock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	block.ID = fmt.Sprintf("block-%d", f.seq)
	if block.CreatedAt.IsZero() {
		block.CreatedAt = nextCreatedAt()
	}
	cp := *block
	f.blocks[block.ID] = &cp
	return nil
}

func (f *fakeBlockStore) FindByID(ctx context.Context, id string) (*models.AbsenceBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.blocks[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeBlockStore) ListByTherapist(ctx context.Context, therapistID string, from time.Time) ([]models.AbsenceBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AbsenceBlock
	for _, b := range f.blocks {
		if b.TherapistID == therapistID && !b.EndAt.Before(from) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (f *fakeBlockStore) ListEndingAfter(ctx context.Context, from time.Time) ([]models.AbsenceBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AbsenceBlock
	for _, b := range f.blocks {
		if !b.EndAt.Before(from) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBlockStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blocks, id)
	return nil
}

// fakeAppointments serialises writes behind one mutex, standing in for the per-therapist
// advisory lock of the postgres repository.
type fakeAppointments struct {
	mu            sync.Mutex
	items         map[string]*models.Appointment
	notifications []models.Notification
	failCancel    map[string]error
	failList      error
	seq           int
}

func newFakeAppointments() *fakeAppointments {
	return &fakeAppointments{items: make(map[string]*models.Appointment), failCancel: make(map[string]error)}
}

func (f *fakeAppointments) seed(appt models.Appointment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if appt.EndAt.IsZero() {
		appt.EndAt = appt.StartAt.Add(time.Duration(appt.DurationMinutes) * time.Minute)
	}
	cp := appt
	f.items[appt.ID] = &cp
}

func (f *fakeAppointments) get(id string) models.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.items[id]
}

func (f *fakeAppointments) notificationsFor(kind models.NotificationKind) []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.notifications {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeAppointments) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.items[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func matchesStatus(status models.AppointmentStatus, statuses []models.AppointmentStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (f *fakeAppointments) list(pred func(*models.Appointment) bool) []models.Appointment {
	var out []models.Appointment
	for _, a := range f.items {
		if pred(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out
}

func (f *fakeAppointments) ListOverlapping(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(func(a *models.Appointment) bool {
		return a.TherapistID == filter.TherapistID && matchesStatus(a.Status, filter.Statuses) &&
			timegrid.OverlapsTime(a.StartAt, a.EndAt, filter.From, filter.To)
	}), nil
}

func (f *fakeAppointments) ListStartingWithin(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList != nil {
		return nil, f.failList
	}
	return f.list(func(a *models.Appointment) bool {
		return a.TherapistID == filter.TherapistID && matchesStatus(a.Status, filter.Statuses) &&
			!a.StartAt.Before(filter.From) && !a.StartAt.After(filter.To) &&
			(filter.CreatedBefore.IsZero() || !a.CreatedAt.After(filter.CreatedBefore))
	}), nil
}

func (f *fakeAppointments) ListActiveStartingBetween(ctx context.Context, from, to time.Time) ([]models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(func(a *models.Appointment) bool {
		return a.Status.IsActive() && a.StartAt.After(from) && !a.StartAt.After(to)
	}), nil
}

func (f *fakeAppointments) CreateIfNoOverlap(ctx context.Context, appt *models.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.items {
		if a.TherapistID == appt.TherapistID && a.Status != models.AppointmentCancelled &&
			timegrid.OverlapsTime(a.StartAt, a.EndAt, appt.StartAt, appt.EndAt) {
			return repository.ErrOverlap
		}
	}
	f.seq++
	appt.ID = fmt.Sprintf("appt-%d", f.seq)
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = nextCreatedAt()
	}
	cp := *appt
	f.items[appt.ID] = &cp
	return nil
}

func (f *fakeAppointments) UpdateStatus(ctx context.Context, id string, from []models.AppointmentStatus, to models.AppointmentStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok || !matchesStatus(a.Status, from) {
		return false, nil
	}
	a.Status = to
	return true, nil
}

func (f *fakeAppointments) CancelWithNotification(ctx context.Context, appointmentID string, note *models.Notification) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failCancel[appointmentID]; err != nil {
		return false, err
	}
	a, ok := f.items[appointmentID]
	if !ok || !a.Status.IsActive() {
		return false, nil
	}
	a.Status = models.AppointmentCancelled
	note.AppointmentID = appointmentID
	f.notifications = append(f.notifications, *note)
	return true, nil
}

func (f *fakeAppointments) CompleteEndedBefore(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, a := range f.items {
		if a.Status.IsActive() && !a.EndAt.After(now) {
			a.Status = models.AppointmentCompleted
			n++
		}
	}
	return n, nil
}

// CreateIfAbsent lets the fake double as the notification store.
func (f *fakeAppointments) CreateIfAbsent(ctx context.Context, note *models.Notification) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notifications {
		if n.AppointmentID == note.AppointmentID && n.Kind == note.Kind {
			return false, nil
		}
	}
	f.notifications = append(f.notifications, *note)
	return true, nil
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

var errStoreDown = errors.New("connection reset by peer")
