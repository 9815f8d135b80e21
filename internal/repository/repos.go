package repository

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/civic-tracker-api/internal/models"
)

// Repos groups the entity repositories bound to one unit of work.
type Repos struct {
	Users         UserRepository
	Applications  ApplicationRepository
	History       HistoryRepository
	Feedback      FeedbackRepository
	Hashes        HashRepository
	Notifications NotificationRepository
	Departments   DepartmentRepository
	Warnings      WarningRepository
	DelayAlerts   DelayAlertRepository
	OTPs          OTPRepository
}

// UserFilter narrows user listings.
type UserFilter struct {
	Role models.UserRole
}

// UserRepository persists accounts.
type UserRepository interface {
	Get(ctx context.Context, id string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	FindByNationalID(ctx context.Context, nationalID string) (*models.User, error)
	List(ctx context.Context, filter UserFilter) ([]models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
}

// ApplicationRepository persists applications.
type ApplicationRepository interface {
	Get(ctx context.Context, id string) (*models.Application, error)
	FindByTrackingID(ctx context.Context, trackingID string) (*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error)
	NextTrackingSequence(ctx context.Context, year int) (int, error)
	Create(ctx context.Context, app *models.Application) error
	Update(ctx context.Context, app *models.Application) error
}

// HistoryRepository is the append-only application history.
type HistoryRepository interface {
	Append(ctx context.Context, entry *models.ApplicationHistory) error
	List(ctx context.Context, applicationID string) ([]models.ApplicationHistory, error)
}

// FeedbackRepository persists citizen ratings.
type FeedbackRepository interface {
	Create(ctx context.Context, fb *models.Feedback) error
	FindByApplication(ctx context.Context, applicationID string) (*models.Feedback, error)
	ListByOfficial(ctx context.Context, officialID string) ([]models.Feedback, error)
}

// HashRepository persists approval audit hashes.
type HashRepository interface {
	Create(ctx context.Context, hash *models.BlockchainHash) error
	FindByApplication(ctx context.Context, applicationID string) (*models.BlockchainHash, error)
	Count(ctx context.Context) (int, error)
}

// NotificationRepository persists in-app notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	Get(ctx context.Context, id string) (*models.Notification, error)
	Update(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string) ([]models.Notification, error)
}

// DepartmentRepository persists departments.
type DepartmentRepository interface {
	Create(ctx context.Context, d *models.Department) error
	Get(ctx context.Context, id string) (*models.Department, error)
	FindByName(ctx context.Context, name string) (*models.Department, error)
	List(ctx context.Context) ([]models.Department, error)
}

// WarningRepository persists admin warnings.
type WarningRepository interface {
	Create(ctx context.Context, w *models.Warning) error
	ListByOfficial(ctx context.Context, officialID string) ([]models.Warning, error)
}

// DelayAlertRepository is the monitor's cooldown ledger.
type DelayAlertRepository interface {
	Get(ctx context.Context, applicationID, kind string) (*models.DelayAlert, error)
	Upsert(ctx context.Context, alert *models.DelayAlert) error
}

// OTPRepository holds one-time codes in memory.
type OTPRepository interface {
	Create(ctx context.Context, record *models.OTPRecord) error
	Latest(ctx context.Context, identifier string, purpose models.OTPPurpose) (*models.OTPRecord, error)
	Update(ctx context.Context, record *models.OTPRecord) error
}

type userRepo struct{ t *txn }

func (r *userRepo) Get(_ context.Context, id string) (*models.User, error) {
	u, ok := r.t.store.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := u.Clone()
	return &c, nil
}

func (r *userRepo) find(match func(models.User) bool) (*models.User, error) {
	for _, u := range r.t.store.users {
		if match(u) {
			c := u.Clone()
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *userRepo) FindByUsername(_ context.Context, username string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Username == username })
}

func (r *userRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, ErrNotFound
	}
	return r.find(func(u models.User) bool { return u.Email != nil && strings.EqualFold(*u.Email, email) })
}

func (r *userRepo) FindByPhone(_ context.Context, phone string) (*models.User, error) {
	if phone == "" {
		return nil, ErrNotFound
	}
	return r.find(func(u models.User) bool { return u.Phone != nil && *u.Phone == phone })
}

func (r *userRepo) FindByNationalID(_ context.Context, nationalID string) (*models.User, error) {
	if nationalID == "" {
		return nil, ErrNotFound
	}
	return r.find(func(u models.User) bool { return u.NationalID != nil && *u.NationalID == nationalID })
}

func (r *userRepo) List(_ context.Context, filter UserFilter) ([]models.User, error) {
	out := make([]models.User, 0)
	for _, u := range r.t.store.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		out = append(out, u.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *userRepo) Create(_ context.Context, user *models.User) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if _, exists := r.t.store.users[user.ID]; exists {
		return fmt.Errorf("user %s already exists", user.ID)
	}
	put(r.t, r.t.store.users, user.ID, user.Clone())
	return nil
}

func (r *userRepo) Update(_ context.Context, user *models.User) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	if _, ok := r.t.store.users[user.ID]; !ok {
		return ErrNotFound
	}
	put(r.t, r.t.store.users, user.ID, user.Clone())
	return nil
}

type applicationRepo struct{ t *txn }

func (r *applicationRepo) Get(_ context.Context, id string) (*models.Application, error) {
	app, ok := r.t.store.applications[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := app.Clone()
	return &c, nil
}

func (r *applicationRepo) FindByTrackingID(_ context.Context, trackingID string) (*models.Application, error) {
	for _, app := range r.t.store.applications {
		if app.TrackingID == trackingID {
			c := app.Clone()
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// List returns matching applications, newest submission first.
func (r *applicationRepo) List(_ context.Context, filter models.ApplicationFilter) ([]models.Application, error) {
	out := make([]models.Application, 0)
	for _, app := range r.t.store.applications {
		if !matchApplication(app, filter) {
			continue
		}
		out = append(out, app.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.After(out[j].SubmittedAt)
		}
		return out[i].TrackingID > out[j].TrackingID
	})
	return out, nil
}

func matchApplication(app models.Application, f models.ApplicationFilter) bool {
	if f.CitizenID != "" && app.CitizenID != f.CitizenID {
		return false
	}
	if f.Status != "" && app.Status != f.Status {
		return false
	}
	if f.OfficialID != "" {
		owned := app.OfficialID != nil && *app.OfficialID == f.OfficialID
		unassigned := f.IncludeUnassigned && !app.HasOfficial() && app.Status == models.StatusSubmitted &&
			f.Department != "" && app.Department == f.Department
		return owned || unassigned
	}
	if f.Department != "" && app.Department != f.Department {
		return false
	}
	return true
}

var trackingPattern = regexp.MustCompile(`^APP-(\d{4})-(\d+)$`)

// NextTrackingSequence returns one more than the highest sequence used in year.
func (r *applicationRepo) NextTrackingSequence(_ context.Context, year int) (int, error) {
	highest := 0
	prefix := strconv.Itoa(year)
	for _, app := range r.t.store.applications {
		m := trackingPattern.FindStringSubmatch(app.TrackingID)
		if m == nil || m[1] != prefix {
			continue
		}
		seq, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		if seq > highest {
			highest = seq
		}
	}
	return highest + 1, nil
}

func (r *applicationRepo) Create(_ context.Context, app *models.Application) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if _, exists := r.t.store.applications[app.ID]; exists {
		return fmt.Errorf("application %s already exists", app.ID)
	}
	put(r.t, r.t.store.applications, app.ID, app.Clone())
	return nil
}

func (r *applicationRepo) Update(_ context.Context, app *models.Application) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	if _, ok := r.t.store.applications[app.ID]; !ok {
		return ErrNotFound
	}
	put(r.t, r.t.store.applications, app.ID, app.Clone())
	return nil
}

type historyRepo struct{ t *txn }

func (r *historyRepo) Append(_ context.Context, entry *models.ApplicationHistory) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	m := r.t.store.history
	key := entry.ApplicationID
	prev, existed := m[key]
	r.t.undo = append(r.t.undo, func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
	next := make([]models.ApplicationHistory, len(prev), len(prev)+1)
	copy(next, prev)
	m[key] = append(next, *entry)
	return nil
}

func (r *historyRepo) List(_ context.Context, applicationID string) ([]models.ApplicationHistory, error) {
	entries := r.t.store.history[applicationID]
	out := make([]models.ApplicationHistory, len(entries))
	copy(out, entries)
	return out, nil
}

type feedbackRepo struct{ t *txn }

func (r *feedbackRepo) Create(_ context.Context, fb *models.Feedback) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	put(r.t, r.t.store.feedback, fb.ID, *fb)
	return nil
}

func (r *feedbackRepo) FindByApplication(_ context.Context, applicationID string) (*models.Feedback, error) {
	for _, fb := range r.t.store.feedback {
		if fb.ApplicationID == applicationID {
			c := fb
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *feedbackRepo) ListByOfficial(_ context.Context, officialID string) ([]models.Feedback, error) {
	out := make([]models.Feedback, 0)
	for _, fb := range r.t.store.feedback {
		if fb.OfficialID != nil && *fb.OfficialID == officialID {
			out = append(out, fb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type hashRepo struct{ t *txn }

func (r *hashRepo) Create(_ context.Context, hash *models.BlockchainHash) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	if hash.ID == "" {
		hash.ID = uuid.NewString()
	}
	put(r.t, r.t.store.hashes, hash.ID, *hash)
	return nil
}

func (r *hashRepo) FindByApplication(_ context.Context, applicationID string) (*models.BlockchainHash, error) {
	for _, h := range r.t.store.hashes {
		if h.ApplicationID == applicationID {
			c := h
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *hashRepo) Count(_ context.Context) (int, error) {
	return len(r.t.store.hashes), nil
}

type notificationRepo struct{ t *txn }

func (r *notificationRepo) Create(_ context.Context, n *models.Notification) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	put(r.t, r.t.store.notifications, n.ID, *n)
	return nil
}

func (r *notificationRepo) Get(_ context.Context, id string) (*models.Notification, error) {
	n, ok := r.t.store.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &n, nil
}

func (r *notificationRepo) Update(_ context.Context, n *models.Notification) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	if _, ok := r.t.store.notifications[n.ID]; !ok {
		return ErrNotFound
	}
	put(r.t, r.t.store.notifications, n.ID, *n)
	return nil
}

// ListByUser returns the user's notifications, newest first.
func (r *notificationRepo) ListByUser(_ context.Context, userID string) ([]models.Notification, error) {
	out := make([]models.Notification, 0)
	for _, n := range r.t.store.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

type departmentRepo struct{ t *txn }

func (r *departmentRepo) Create(_ context.Context, d *models.Department) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	put(r.t, r.t.store.departments, d.ID, *d)
	return nil
}

func (r *departmentRepo) Get(_ context.Context, id string) (*models.Department, error) {
	d, ok := r.t.store.departments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (r *departmentRepo) FindByName(_ context.Context, name string) (*models.Department, error) {
	for _, d := range r.t.store.departments {
		if strings.EqualFold(d.Name, name) {
			c := d
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *departmentRepo) List(_ context.Context) ([]models.Department, error) {
	out := make([]models.Department, 0, len(r.t.store.departments))
	for _, d := range r.t.store.departments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type warningRepo struct{ t *txn }

func (r *warningRepo) Create(_ context.Context, w *models.Warning) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	put(r.t, r.t.store.warnings, w.ID, *w)
	return nil
}

// ListByOfficial returns the official's warnings, newest first.
func (r *warningRepo) ListByOfficial(_ context.Context, officialID string) ([]models.Warning, error) {
	out := make([]models.Warning, 0)
	for _, w := range r.t.store.warnings {
		if w.OfficialID == officialID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	return out, nil
}

type delayAlertRepo struct{ t *txn }

func (r *delayAlertRepo) Get(_ context.Context, applicationID, kind string) (*models.DelayAlert, error) {
	key := models.DelayAlert{ApplicationID: applicationID, Kind: kind}.Key()
	a, ok := r.t.store.delayAlerts[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r *delayAlertRepo) Upsert(_ context.Context, alert *models.DelayAlert) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	put(r.t, r.t.store.delayAlerts, alert.Key(), *alert)
	return nil
}

// otpRetention is how long an expired code stays answerable ("OTP expired")
// before Create drops it.
const otpRetention = time.Hour

type otpRepo struct{ t *txn }

// Create appends record and prunes what Latest can no longer return: records
// superseded by a newer one for the same identifier and purpose, and latest
// records expired for longer than otpRetention.
func (r *otpRepo) Create(_ context.Context, record *models.OTPRecord) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	s := r.t.store
	prev := s.otps
	r.t.undo = append(r.t.undo, func() { s.otps = prev })
	s.otps = append(pruneOTPs(prev, *record), *record)
	return nil
}

func pruneOTPs(existing []models.OTPRecord, next models.OTPRecord) []models.OTPRecord {
	type otpKey struct {
		identifier string
		purpose    models.OTPPurpose
	}
	seen := map[otpKey]bool{{next.Identifier, next.Purpose}: true}
	cutoff := next.CreatedAt.Add(-otpRetention)

	keep := make([]bool, len(existing))
	kept := 0
	for i := len(existing) - 1; i >= 0; i-- {
		k := otpKey{existing[i].Identifier, existing[i].Purpose}
		if seen[k] {
			continue
		}
		seen[k] = true
		if !next.CreatedAt.IsZero() && existing[i].ExpiresAt.Before(cutoff) {
			continue
		}
		keep[i] = true
		kept++
	}

	out := make([]models.OTPRecord, 0, kept+1)
	for i, ok := range keep {
		if ok {
			out = append(out, existing[i])
		}
	}
	return out
}

// Latest returns the most recently issued record for identifier and purpose.
func (r *otpRepo) Latest(_ context.Context, identifier string, purpose models.OTPPurpose) (*models.OTPRecord, error) {
	otps := r.t.store.otps
	for i := len(otps) - 1; i >= 0; i-- {
		if otps[i].Identifier == identifier && otps[i].Purpose == purpose {
			c := otps[i]
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *otpRepo) Update(_ context.Context, record *models.OTPRecord) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	s := r.t.store
	for i := range s.otps {
		if s.otps[i].ID != record.ID {
			continue
		}
		prev := s.otps[i]
		idx := i
		r.t.undo = append(r.t.undo, func() { s.otps[idx] = prev })
		s.otps[i] = *record
		return nil
	}
	return ErrNotFound
}
