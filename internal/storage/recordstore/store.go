package recordstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/yndnr/credvault/internal/core/domain"
	"github.com/yndnr/credvault/internal/telemetry/metric"
)

// BackupSuffix is appended to the vault path to name the previous image.
const BackupSuffix = ".bak"

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("recordstore: store closed")

	// ErrNonceReuse is returned when a sealed record carries a nonce that
	// is already stored in the vault.
	ErrNonceReuse = errors.New("recordstore: nonce already in use")
)

// SealFunc produces the record to insert for an id assigned by the store.
type SealFunc func(id uint64, now time.Time) (Record, error)

// ResealFunc produces the replacement for an existing record.
type ResealFunc func(cur Record, now time.Time) (Record, error)

// Store is a single vault file holding a header, the canary and the
// encrypted records.
//
// Mutations are serialized by the store's mutex and replace the file
// atomically. The in-memory state changes only after the new image is
// durable.
type Store struct {
	path string

	mu        sync.RWMutex
	st        *state
	stamp     fs.FileInfo
	recovered bool
	closed    bool
	watcher   *Watcher

	logger    *slog.Logger
	metrics   *metric.Registry
	clock     func() time.Time
	noBackup  bool
	failpoint func(Stage) error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metric.Registry) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithClock sets the time source used for record timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithoutBackup disables the <path>.bak copy made before each replace.
func WithoutBackup() Option {
	return func(s *Store) {
		s.noBackup = true
	}
}

// WithFailpoint installs a hook called at each replace stage. A non-nil
// return aborts that attempt.
func WithFailpoint(fn func(Stage) error) Option {
	return func(s *Store) {
		s.failpoint = fn
	}
}

func newStore(path string, opts []Option) *Store {
	s := &Store{
		path:   path,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("vault", path)
	return s
}

// Create writes a new vault holding only the canary. It fails with
// domain.ErrAlreadyExists when path or its backup already exists.
func Create(path string, header Header, canary Record, opts ...Option) (*Store, error) {
	s := newStore(path, opts)

	for _, p := range []string{path, path + BackupSuffix} {
		if _, err := os.Lstat(p); err == nil {
			return nil, domain.ErrAlreadyExists.WithDetails(p)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrStoreWrite.WithDetails(p).WithCause(err)
		}
	}

	header.Version = FormatVersion
	if header.NextID == 0 {
		header.NextID = 1
	}
	if header.CreatedAt == 0 {
		header.CreatedAt = s.clock().UnixMilli()
	}
	canary.ID = 0

	st := &state{header: header, canary: canary.clone()}
	st.header.Salt = append([]byte(nil), header.Salt...)
	data, err := encodeImage(st)
	if err != nil {
		return nil, domain.ErrInvalidParameters.WithCause(err)
	}

	if err := s.createExclusive(data); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, domain.ErrAlreadyExists.WithDetails(path)
		}
		s.metrics.RecordStoreWrite(metric.ResultFailure)
		return nil, domain.ErrStoreWrite.WithCause(err)
	}
	s.metrics.RecordStoreWrite(metric.ResultSuccess)

	s.st = st
	if s.stamp, err = os.Stat(path); err != nil {
		return nil, domain.ErrStoreWrite.WithCause(err)
	}
	s.logger.Info("vault created", "cipher", string(header.Cipher))
	return s, nil
}

// Open loads and verifies an existing vault. A missing file yields
// domain.ErrNotFound. A damaged file falls back to the backup copy,
// opening the store in recovered mode; if that fails too the result is
// domain.ErrCorruptStore.
func Open(path string, opts ...Option) (*Store, error) {
	s := newStore(path, opts)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound.WithDetails(path)
		}
		return nil, domain.ErrCorruptStore.WithDetails(path).WithCause(err)
	}

	st, err := readState(path)
	if err != nil {
		s.logger.Warn("vault file damaged, trying backup", "error", err)
		backup, berr := readState(path + BackupSuffix)
		if berr != nil {
			s.logger.Error("vault backup unusable", "error", berr)
			return nil, domain.ErrCorruptStore.WithDetails(path).WithCause(err)
		}
		st = backup
		s.recovered = true
		s.metrics.IncStoreRecovery()
		s.logger.Warn("vault opened from backup, recent changes may be missing")
	}

	s.st = st
	s.stamp = info
	return s, nil
}

func readState(path string) (*state, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeImage(data)
}

// Path returns the vault file path.
func (s *Store) Path() string {
	return s.path
}

// Recovered reports whether the store was loaded from its backup and has
// not been rewritten since.
func (s *Store) Recovered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recovered
}

// Header returns a copy of the vault header.
func (s *Store) Header() Header {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.st.header
	h.Salt = append([]byte(nil), h.Salt...)
	return h
}

// Canary returns a copy of the canary record.
func (s *Store) Canary() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.canary.clone()
}

// Len returns the number of stored records, excluding the canary.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.records)
}

// Size returns the size in bytes of the vault file last seen by the store.
func (s *Store) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stamp == nil {
		return 0
	}
	return s.stamp.Size()
}

// List returns record summaries ordered by id. Nothing is decrypted.
func (s *Store) List() []domain.RecordSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RecordSummary, 0, len(s.st.records))
	for _, r := range s.st.records {
		out = append(out, domain.RecordSummary{
			ID:         r.ID,
			Label:      r.Label,
			CreatedAt:  r.CreatedAt,
			ModifiedAt: r.ModifiedAt,
		})
	}
	return out
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id uint64) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.st.index(id)
	if i < 0 {
		return Record{}, domain.ErrNotFound.WithDetails(fmt.Sprintf("record %d", id))
	}
	return s.st.records[i].clone(), nil
}

// Insert assigns the next id, lets seal build the record and persists it.
// seal runs under the store lock and must not call back into the store.
func (s *Store) Insert(ctx context.Context, seal SealFunc) (uint64, error) {
	var id uint64
	err := s.mutate(ctx, func(next *state) error {
		id = next.header.NextID
		r, err := seal(id, s.clock())
		if err != nil {
			return err
		}
		r.ID = id
		if err := r.validate(); err != nil {
			return err
		}
		if next.nonceInUse(r.Nonce, 0) {
			return ErrNonceReuse
		}
		next.records = append(next.records, r.clone())
		next.header.NextID++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Update replaces the record with the given id with the output of reseal.
// The replacement must carry a nonce not used anywhere in the vault.
func (s *Store) Update(ctx context.Context, id uint64, reseal ResealFunc) error {
	return s.mutate(ctx, func(next *state) error {
		i := next.index(id)
		if i < 0 {
			return domain.ErrNotFound.WithDetails(fmt.Sprintf("record %d", id))
		}
		r, err := reseal(next.records[i].clone(), s.clock())
		if err != nil {
			return err
		}
		r.ID = id
		if err := r.validate(); err != nil {
			return err
		}
		if next.nonceInUse(r.Nonce, 0) {
			return ErrNonceReuse
		}
		next.records[i] = r.clone()
		return nil
	})
}

// Delete removes the record with the given id.
func (s *Store) Delete(ctx context.Context, id uint64) error {
	return s.mutate(ctx, func(next *state) error {
		i := next.index(id)
		if i < 0 {
			return domain.ErrNotFound.WithDetails(fmt.Sprintf("record %d", id))
		}
		next.records = append(next.records[:i], next.records[i+1:]...)
		return nil
	})
}

// Reload re-reads the vault file unconditionally. On failure the current
// state is kept.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.reloadLocked()
}

// Refresh reloads the vault only if the file changed since it was last
// read or written by this store.
func (s *Store) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.refreshLocked()
}

// Close stops the watcher, if any. Further mutations fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.watcher != nil {
		return s.watcher.Stop()
	}
	return nil
}

func (s *Store) mutate(ctx context.Context, apply func(next *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.refreshLocked(); err != nil {
		return err
	}

	next := s.st.clone()
	if err := apply(next); err != nil {
		return err
	}
	if err := s.commitLocked(next); err != nil {
		return err
	}
	s.st = next
	return nil
}

func (s *Store) refreshLocked() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return domain.ErrCorruptStore.WithDetails("vault file unavailable").WithCause(err)
	}
	if s.stamp != nil && os.SameFile(s.stamp, info) &&
		s.stamp.Size() == info.Size() && s.stamp.ModTime().Equal(info.ModTime()) {
		return nil
	}
	return s.reloadLocked()
}

func (s *Store) reloadLocked() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return domain.ErrCorruptStore.WithDetails("vault file unavailable").WithCause(err)
	}
	st, err := readState(s.path)
	if err != nil {
		return domain.ErrCorruptStore.WithDetails(s.path).WithCause(err)
	}
	s.st = st
	s.stamp = info
	s.recovered = false
	s.metrics.IncStoreReload()
	s.logger.Info("vault reloaded", "records", len(st.records))
	return nil
}

// commitLocked persists next, retrying once. After the second failure the
// previous file decides the error: readable means nothing changed.
func (s *Store) commitLocked(next *state) error {
	data, err := encodeImage(next)
	if err != nil {
		return domain.ErrInvalidParameters.WithCause(err)
	}

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if attempt > 1 {
			s.metrics.IncStoreWriteRetry()
			s.logger.Warn("retrying vault write", "error", lastErr)
		}
		if lastErr = s.replace(data); lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		s.metrics.RecordStoreWrite(metric.ResultFailure)
		s.logger.Error("vault write failed", "error", lastErr)
		if _, err := readState(s.path); err != nil {
			return domain.ErrCorruptStore.WithDetails(s.path).WithCause(lastErr)
		}
		return domain.ErrStoreWrite.WithCause(lastErr)
	}

	s.metrics.RecordStoreWrite(metric.ResultSuccess)
	if info, err := os.Stat(s.path); err == nil {
		s.stamp = info
	}
	s.recovered = false
	return nil
}
