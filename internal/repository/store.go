package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/civic-tracker-api/internal/models"
	"github.com/noah-isme/civic-tracker-api/pkg/config"
	"github.com/noah-isme/civic-tracker-api/pkg/jobs"
	"github.com/noah-isme/civic-tracker-api/pkg/storage"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")
	// ErrReadOnly is returned when a mutation is attempted inside View.
	ErrReadOnly = errors.New("mutation inside read-only view")
)

// SnapshotJobType is the queue job type used for async snapshots.
const SnapshotJobType = "store.snapshot"

// Snapshot file names, one per entity type.
const (
	fileUsers         = "users.json"
	fileApplications  = "applications.json"
	fileHistory       = "applicationHistory.json"
	fileFeedback      = "feedback.json"
	fileHashes        = "blockchainHashes.json"
	fileNotifications = "notifications.json"
	fileDepartments   = "departments.json"
	fileWarnings      = "warnings.json"
	fileDelayAlerts   = "delayAlerts.json"
)

// Enqueuer accepts background jobs.
type Enqueuer interface {
	Enqueue(job jobs.Job) error
}

// Store is the in-memory entity store. Every mutation runs inside a unit of
// work holding the exclusive lock; failed units are rolled back.
type Store struct {
	mu sync.RWMutex

	users         map[string]models.User
	applications  map[string]models.Application
	history       map[string][]models.ApplicationHistory
	feedback      map[string]models.Feedback
	hashes        map[string]models.BlockchainHash
	notifications map[string]models.Notification
	departments   map[string]models.Department
	warnings      map[string]models.Warning
	delayAlerts   map[string]models.DelayAlert
	otps          []models.OTPRecord

	files  *storage.LocalStorage
	policy string
	queue  Enqueuer

	persistMu sync.Mutex
	logger    *zap.Logger
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSnapshotFiles sets where snapshots are written.
func WithSnapshotFiles(files *storage.LocalStorage) StoreOption {
	return func(s *Store) { s.files = files }
}

// NewStore builds an empty store. Without snapshot files the policy is forced to off.
func NewStore(policy string, opts ...StoreOption) *Store {
	s := &Store{
		users:         make(map[string]models.User),
		applications:  make(map[string]models.Application),
		history:       make(map[string][]models.ApplicationHistory),
		feedback:      make(map[string]models.Feedback),
		hashes:        make(map[string]models.BlockchainHash),
		notifications: make(map[string]models.Notification),
		departments:   make(map[string]models.Department),
		warnings:      make(map[string]models.Warning),
		delayAlerts:   make(map[string]models.DelayAlert),
		policy:        policy,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.files == nil {
		s.policy = config.SnapshotOff
	}
	return s
}

// Policy returns the effective snapshot policy.
func (s *Store) Policy() string { return s.policy }

// AttachQueue registers the snapshot job handler and routes async snapshots through q.
func (s *Store) AttachQueue(q *jobs.Queue) {
	q.Handle(SnapshotJobType, func(ctx context.Context, _ jobs.Job) error {
		return s.Snapshot(ctx)
	})
	s.queue = q
}

// WithinTx runs fn as one unit of work. If fn returns an error every mutation
// it made is undone and the error is returned unchanged.
func (s *Store) WithinTx(ctx context.Context, fn func(r Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	t := &txn{store: s}
	err := safeRun(fn, t.repos())
	if err != nil {
		t.rollback()
	}
	dirty := len(t.undo) > 0 && err == nil
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if dirty {
		s.afterCommit(ctx)
	}
	return nil
}

// WithinApplicationTx loads the application and runs fn in the same unit of work.
func (s *Store) WithinApplicationTx(ctx context.Context, applicationID string, fn func(r Repos, app *models.Application) error) error {
	return s.WithinTx(ctx, func(r Repos) error {
		app, err := r.Applications.Get(ctx, applicationID)
		if err != nil {
			return err
		}
		return fn(r, app)
	})
}

// View runs fn under the shared lock. Mutations fail with ErrReadOnly.
func (s *Store) View(ctx context.Context, fn func(r Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := &txn{store: s, readOnly: true}
	return safeRun(fn, t.repos())
}

func safeRun(fn func(r Repos) error, r Repos) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("unit of work panicked: %v", rec)
		}
	}()
	return fn(r)
}

func (s *Store) afterCommit(ctx context.Context) {
	switch s.policy {
	case config.SnapshotSync:
		if err := s.Snapshot(ctx); err != nil {
			s.logger.Error("snapshot after commit failed", zap.Error(err))
		}
	case config.SnapshotAsync:
		if s.queue == nil {
			if err := s.Snapshot(ctx); err != nil {
				s.logger.Error("snapshot after commit failed", zap.Error(err))
			}
			return
		}
		if err := s.queue.Enqueue(jobs.Job{Type: SnapshotJobType, Key: SnapshotJobType}); err != nil {
			s.logger.Warn("async snapshot not queued, writing inline", zap.Error(err))
			if err := s.Snapshot(ctx); err != nil {
				s.logger.Error("snapshot after commit failed", zap.Error(err))
			}
		}
	}
}

// Snapshot writes every entity type to its file. OTP records are never written.
func (s *Store) Snapshot(ctx context.Context) error {
	if s.files == nil {
		return nil
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	payloads, err := s.marshalAll()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(payloads))
	for name := range payloads {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.files.Save(name, payloads[name]); err != nil {
			return fmt.Errorf("snapshot %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) marshalAll() (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := map[string]interface{}{
		fileUsers:         s.users,
		fileApplications:  s.applications,
		fileHistory:       s.history,
		fileFeedback:      s.feedback,
		fileHashes:        s.hashes,
		fileNotifications: s.notifications,
		fileDepartments:   s.departments,
		fileWarnings:      s.warnings,
		fileDelayAlerts:   s.delayAlerts,
	}
	out := make(map[string][]byte, len(sources))
	for name, src := range sources {
		payload, err := json.MarshalIndent(src, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", name, err)
		}
		out[name] = payload
	}
	return out, nil
}

// Load restores every snapshot file present. A missing file leaves that
// entity type empty; an unreadable one aborts the load.
func (s *Store) Load(ctx context.Context) error {
	if s.files == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	targets := map[string]interface{}{
		fileUsers:         &s.users,
		fileApplications:  &s.applications,
		fileHistory:       &s.history,
		fileFeedback:      &s.feedback,
		fileHashes:        &s.hashes,
		fileNotifications: &s.notifications,
		fileDepartments:   &s.departments,
		fileWarnings:      &s.warnings,
		fileDelayAlerts:   &s.delayAlerts,
	}
	loaded := 0
	for name, dest := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := s.files.ReadFile(name)
		if errors.Is(err, storage.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, dest); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		loaded++
	}
	s.ensureMaps()
	s.logger.Info("entity store loaded",
		zap.Int("files", loaded),
		zap.Int("users", len(s.users)),
		zap.Int("applications", len(s.applications)),
	)
	return nil
}

// ensureMaps replaces maps decoded from a JSON "null" with empty ones.
func (s *Store) ensureMaps() {
	if s.users == nil {
		s.users = make(map[string]models.User)
	}
	if s.applications == nil {
		s.applications = make(map[string]models.Application)
	}
	if s.history == nil {
		s.history = make(map[string][]models.ApplicationHistory)
	}
	if s.feedback == nil {
		s.feedback = make(map[string]models.Feedback)
	}
	if s.hashes == nil {
		s.hashes = make(map[string]models.BlockchainHash)
	}
	if s.notifications == nil {
		s.notifications = make(map[string]models.Notification)
	}
	if s.departments == nil {
		s.departments = make(map[string]models.Department)
	}
	if s.warnings == nil {
		s.warnings = make(map[string]models.Warning)
	}
	if s.delayAlerts == nil {
		s.delayAlerts = make(map[string]models.DelayAlert)
	}
}

// Counts returns the number of records per entity type.
func (s *Store) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	historyEntries := 0
	for _, entries := range s.history {
		historyEntries += len(entries)
	}
	return map[string]int{
		"users":            len(s.users),
		"applications":     len(s.applications),
		"history":          historyEntries,
		"feedback":         len(s.feedback),
		"blockchainHashes": len(s.hashes),
		"notifications":    len(s.notifications),
		"departments":      len(s.departments),
		"warnings":         len(s.warnings),
		"delayAlerts":      len(s.delayAlerts),
		"otps":             len(s.otps),
	}
}

// txn records undo operations for one unit of work.
type txn struct {
	store    *Store
	readOnly bool
	undo     []func()
}

func (t *txn) repos() Repos {
	return Repos{
		Users:         &userRepo{t: t},
		Applications:  &applicationRepo{t: t},
		History:       &historyRepo{t: t},
		Feedback:      &feedbackRepo{t: t},
		Hashes:        &hashRepo{t: t},
		Notifications: &notificationRepo{t: t},
		Departments:   &departmentRepo{t: t},
		Warnings:      &warningRepo{t: t},
		DelayAlerts:   &delayAlertRepo{t: t},
		OTPs:          &otpRepo{t: t},
	}
}

func (t *txn) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *txn) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// put stores v under key and records how to restore the previous state.
func put[T any](t *txn, m map[string]T, key string, v T) {
	prev, existed := m[key]
	t.undo = append(t.undo, func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
	m[key] = v
}
