package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nbutton23/zxcvbn-go"

	"github.com/yndnr/credvault/internal/audit"
	"github.com/yndnr/credvault/internal/core/domain"
	"github.com/yndnr/credvault/internal/storage"
	"github.com/yndnr/credvault/internal/storage/memory"
	"github.com/yndnr/credvault/internal/storage/recordstore"
	"github.com/yndnr/credvault/internal/telemetry/logger"
	"github.com/yndnr/credvault/internal/telemetry/metric"
	"github.com/yndnr/credvault/pkg/cmap"
	"github.com/yndnr/credvault/pkg/crypto/adaptive"
	"github.com/yndnr/credvault/pkg/crypto/kdf"
)

// Audit backends.
const (
	AuditBackendBadger = "badger"
	AuditBackendMemory = "memory"
)

// AuditSuffix is appended to the vault path to name its audit directory.
const AuditSuffix = ".audit"

// AuditConfig configures the per-vault audit log.
type AuditConfig struct {
	Enabled bool

	// Backend is AuditBackendBadger or AuditBackendMemory.
	Backend string

	// Dir holds the audit directories. Empty places each one next to
	// its vault file.
	Dir string
}

// Config configures a Manager.
type Config struct {
	// KDF is used for new vaults. Existing vaults use their header.
	KDF      kdf.Params
	KDFFloor kdf.Floor

	// Cipher is used for new vaults.
	Cipher adaptive.CipherType

	// IdleTimeout locks a session after this long without a successful
	// operation. Zero disables the timeout.
	IdleTimeout time.Duration

	Lockout LockoutPolicy

	// MinPassphraseScore is the minimum zxcvbn score (0-4) accepted when
	// creating a vault.
	MinPassphraseScore int

	Backup bool
	Watch  bool

	Audit AuditConfig
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		KDF:         kdf.DefaultParams(),
		KDFFloor:    kdf.DefaultFloor,
		Cipher:      adaptive.CipherAuto,
		IdleTimeout: 5 * time.Minute,
		Lockout:     DefaultLockoutPolicy(),
		Backup:      true,
		Watch:       true,
		Audit: AuditConfig{
			Enabled: true,
			Backend: AuditBackendBadger,
		},
	}
}

// vault is the handle shared by every session of one vault file.
type vault struct {
	path  string
	store *recordstore.Store
	audit *audit.Log // nil when auditing is disabled
	kv    storage.KVEngine

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

func (v *vault) attach(s *Session) {
	v.mu.Lock()
	v.sessions[s] = struct{}{}
	v.mu.Unlock()
}

func (v *vault) detach(s *Session) {
	v.mu.Lock()
	delete(v.sessions, s)
	v.mu.Unlock()
}

func (v *vault) openSessions() []*Session {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*Session, 0, len(v.sessions))
	for s := range v.sessions {
		out = append(out, s)
	}
	return out
}

func (v *vault) close() error {
	err := v.store.Close()
	if v.kv != nil {
		err = errors.Join(err, v.kv.Close())
	}
	return err
}

// Manager opens vaults and hands out sessions.
//
// A Manager shares one store and audit log per vault path between all
// sessions it creates, so their writes are serialized by the same lock.
type Manager struct {
	cfg       Config
	logger    logger.Logger
	metrics   *metric.Registry
	clock     func() time.Time
	storeOpts []recordstore.Option

	vaults  *cmap.Map[string, *vault]
	lockout *lockoutTracker
	closed  atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(r *metric.Registry) Option {
	return func(m *Manager) {
		m.metrics = r
	}
}

// WithClock sets the time source used for timestamps, lockouts and idle
// deadlines.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithStoreOptions appends options passed to every record store.
func WithStoreOptions(opts ...recordstore.Option) Option {
	return func(m *Manager) {
		m.storeOpts = append(m.storeOpts, opts...)
	}
}

// NewManager creates a Manager.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		logger:  logger.Default(),
		clock:   time.Now,
		vaults:  cmap.New[string, *vault](),
		lockout: newLockoutTracker(cfg.Lockout),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "vault")

	if m.metrics != nil {
		if err := m.metrics.Register(metric.NewCollector(m.vaultStats)); err != nil {
			m.logger.Warn("failed to register vault collector", "error", err)
		}
	}
	return m
}

// CreateVault creates a new vault file at path protected by passphrase.
func (m *Manager) CreateVault(ctx context.Context, path string, passphrase []byte) (*domain.VaultInfo, error) {
	if err := m.usable(ctx); err != nil {
		return nil, err
	}
	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	if err := m.checkPassphrase(passphrase); err != nil {
		return nil, err
	}
	if m.auditOnDisk() {
		if _, err := os.Stat(m.auditDir(path)); err == nil {
			return nil, domain.ErrAlreadyExists.WithDetails(m.auditDir(path))
		}
	}

	salt, err := kdf.NewSalt()
	if err != nil {
		return nil, err
	}
	if err := m.cfg.KDFFloor.Check(m.cfg.KDF, salt); err != nil {
		return nil, domain.ErrInvalidParameters.WithCause(err)
	}
	if err := kdf.DefaultCeiling.Check(m.cfg.KDF); err != nil {
		return nil, domain.ErrInvalidParameters.WithCause(err)
	}
	cipherType := adaptive.Resolve(m.cfg.Cipher)

	master, err := m.derive(ctx, passphrase, salt, m.cfg.KDF)
	if err != nil {
		return nil, err
	}
	defer kdf.Zero(master)

	c, subkey, err := recordCipher(master, cipherType)
	if err != nil {
		return nil, err
	}
	defer kdf.Zero(subkey)

	now := m.clock().UnixMilli()
	canary, err := seal(c, recordstore.Record{CreatedAt: now, ModifiedAt: now}, canaryPlaintext)
	if err != nil {
		return nil, err
	}
	header := recordstore.Header{
		Cipher:    cipherType,
		Salt:      salt,
		KDF:       m.cfg.KDF,
		CreatedAt: now,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, domain.ErrStoreWrite.WithCause(err)
	}
	store, err := recordstore.Create(path, header, canary, m.storeOptions()...)
	if err != nil {
		return nil, err
	}

	v, existed, err := m.vaults.GetOrCreate(path, func() (*vault, error) {
		return m.newVault(ctx, path, store)
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	if existed {
		// A handle left from a vault that was removed behind our back.
		store.Close()
	}

	m.appendAudit(ctx, v, audit.Entry{Event: audit.EventVaultCreate, Outcome: audit.OutcomeSuccess})
	m.logger.Info("vault created", "vault", path, "cipher", cipherType)
	return m.info(v), nil
}

// Unlock derives the key from passphrase and verifies it against the
// vault canary.
func (m *Manager) Unlock(ctx context.Context, path string, passphrase []byte) (*Session, error) {
	if len(passphrase) == 0 {
		return nil, domain.ErrInvalidParameters.WithDetails("passphrase is required")
	}
	return m.unlock(ctx, path, func(h recordstore.Header) ([]byte, error) {
		key, err := m.derive(ctx, passphrase, h.Salt, h.KDF)
		switch {
		case errors.Is(err, kdf.ErrInvalidParameters):
			return nil, domain.ErrCorruptStore.WithDetails("kdf parameters below floor").WithCause(err)
		case errors.Is(err, kdf.ErrCostTooHigh):
			return nil, domain.ErrCorruptStore.WithDetails("kdf parameters above ceiling").WithCause(err)
		}
		return key, err
	})
}

// UnlockWithKey unlocks with an already derived master key. The key is
// checked against the canary exactly like a passphrase and is subject
// to the same lockout.
func (m *Manager) UnlockWithKey(ctx context.Context, path string, masterKey []byte) (*Session, error) {
	if len(masterKey) != kdf.KeyLength {
		return nil, domain.ErrInvalidParameters.WithDetails(
			fmt.Sprintf("master key must be %d bytes", kdf.KeyLength))
	}
	return m.unlock(ctx, path, func(recordstore.Header) ([]byte, error) {
		return bytes.Clone(masterKey), nil
	})
}

func (m *Manager) unlock(ctx context.Context, path string, keyFn func(recordstore.Header) ([]byte, error)) (*Session, error) {
	if err := m.usable(ctx); err != nil {
		return nil, err
	}
	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	v, err := m.openVault(ctx, path)
	if err != nil {
		return nil, err
	}
	m.seedLockout(ctx, v)

	release, err := m.lockout.admit(path, m.clock())
	if err != nil {
		m.metrics.RecordUnlock(metric.ResultDenied)
		m.appendAudit(ctx, v, audit.Entry{
			Event:   audit.EventVaultUnlock,
			Outcome: audit.OutcomeDenied,
			Code:    domain.GetErrorCode(err),
		})
		return nil, err
	}

	header := v.store.Header()
	master, err := keyFn(header)
	if err != nil {
		release()
		return nil, err
	}
	defer kdf.Zero(master)

	c, subkey, err := recordCipher(master, header.Cipher)
	if err != nil {
		release()
		return nil, err
	}

	if !verifyCanary(c, v.store.Canary()) {
		kdf.Zero(subkey)
		cooldown, locked := m.lockout.failure(path, m.clock())
		m.metrics.RecordUnlock(metric.ResultFailure)
		m.appendAudit(ctx, v, audit.Entry{
			Event:   audit.EventVaultUnlock,
			Outcome: audit.OutcomeFailure,
			Code:    domain.ErrWrongPassphrase.Code,
		})
		if locked {
			m.metrics.IncLockout()
			m.logger.Warn("vault locked out", "vault", path, "cooldown", cooldown)
		}
		return nil, domain.ErrWrongPassphrase
	}

	release()
	m.lockout.success(path)
	m.metrics.RecordUnlock(metric.ResultSuccess)
	m.appendAudit(ctx, v, audit.Entry{Event: audit.EventVaultUnlock, Outcome: audit.OutcomeSuccess})
	m.logger.Info("vault unlocked", "vault", path)

	return newSession(m, v, c, subkey), nil
}

// Info returns the vault header attributes without unlocking.
func (m *Manager) Info(ctx context.Context, path string) (*domain.VaultInfo, error) {
	v, err := m.handle(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := v.store.Refresh(); err != nil {
		return nil, err
	}
	return m.info(v), nil
}

// ListLocked lists record summaries without unlocking. Labels are stored
// in clear so no key is needed.
func (m *Manager) ListLocked(ctx context.Context, path string) ([]domain.RecordSummary, error) {
	v, err := m.handle(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := v.store.Refresh(); err != nil {
		return nil, err
	}
	return v.store.List(), nil
}

// AuditVerify checks the audit chain of the vault and returns the number
// of entries verified.
func (m *Manager) AuditVerify(ctx context.Context, path string) (uint64, error) {
	v, err := m.auditHandle(ctx, path)
	if err != nil {
		return 0, err
	}
	return v.audit.Verify(ctx)
}

// AuditEntries returns the most recent audit entries, oldest first.
// A limit of zero or less returns every entry.
func (m *Manager) AuditEntries(ctx context.Context, path string, limit int) ([]audit.Entry, error) {
	v, err := m.auditHandle(ctx, path)
	if err != nil {
		return nil, err
	}
	return v.audit.Entries(ctx, limit)
}

// Lock locks every open session of the vault at path.
func (m *Manager) Lock(path string) {
	path, err := normalizePath(path)
	if err != nil {
		return
	}
	v, ok := m.vaults.Get(path)
	if !ok {
		return
	}
	for _, s := range v.openSessions() {
		s.lock("manager lock")
	}
}

// Close locks all sessions and releases every vault handle.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	for _, path := range m.vaults.Keys() {
		v, ok := m.vaults.Pop(path)
		if !ok {
			continue
		}
		for _, s := range v.openSessions() {
			s.lock("shutdown")
		}
		if err := v.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) usable(ctx context.Context) error {
	if m.closed.Load() {
		return errors.New("service: manager closed")
	}
	return ctx.Err()
}

func (m *Manager) handle(ctx context.Context, path string) (*vault, error) {
	if err := m.usable(ctx); err != nil {
		return nil, err
	}
	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	return m.openVault(ctx, path)
}

func (m *Manager) auditHandle(ctx context.Context, path string) (*vault, error) {
	v, err := m.handle(ctx, path)
	if err != nil {
		return nil, err
	}
	if v.audit == nil {
		return nil, domain.ErrInvalidParameters.WithDetails("audit log is disabled")
	}
	return v, nil
}

func (m *Manager) openVault(ctx context.Context, path string) (*vault, error) {
	v, _, err := m.vaults.GetOrCreate(path, func() (*vault, error) {
		store, err := recordstore.Open(path, m.storeOptions()...)
		if err != nil {
			return nil, err
		}
		v, err := m.newVault(ctx, path, store)
		if err != nil {
			store.Close()
			return nil, err
		}
		return v, nil
	})
	return v, err
}

func (m *Manager) newVault(ctx context.Context, path string, store *recordstore.Store) (*vault, error) {
	v := &vault{
		path:     path,
		store:    store,
		sessions: make(map[*Session]struct{}),
	}
	if store.Recovered() {
		m.logger.Warn("vault opened from backup", "vault", path)
	}
	if m.cfg.Watch {
		if err := store.Watch(); err != nil {
			m.logger.Warn("file watch unavailable", "vault", path, "error", err)
		}
	}
	if !m.cfg.Audit.Enabled {
		return v, nil
	}

	kv, err := m.openAuditKV(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	log, err := audit.Open(ctx, kv,
		audit.WithLogger(m.logger.Slog().With("vault", path)),
		audit.WithMetrics(m.metrics),
		audit.WithClock(m.clock),
	)
	if err != nil {
		kv.Close()
		return nil, err
	}
	if _, err := log.Verify(ctx); err != nil {
		m.logger.Warn("audit chain verification failed", "vault", path, "error", err)
	}
	v.kv, v.audit = kv, log
	return v, nil
}

func (m *Manager) auditOnDisk() bool {
	return m.cfg.Audit.Enabled && m.cfg.Audit.Backend != AuditBackendMemory
}

func (m *Manager) auditDir(path string) string {
	if m.cfg.Audit.Dir == "" {
		return path + AuditSuffix
	}
	return filepath.Join(m.cfg.Audit.Dir, filepath.Base(path)+AuditSuffix)
}

func (m *Manager) openAuditKV(path string) (storage.KVEngine, error) {
	if !m.auditOnDisk() {
		return memory.NewKV(), nil
	}
	engine, err := storage.NewBadgerEngine(
		storage.DefaultKVConfig(m.auditDir(path)),
		m.logger.Slog().With("component", "audit-kv"),
		storage.WithBadgerMetrics(m.metrics),
	)
	if err != nil {
		return nil, err
	}
	return engine, nil
}

func (m *Manager) storeOptions() []recordstore.Option {
	opts := []recordstore.Option{
		recordstore.WithLogger(m.logger.Slog()),
		recordstore.WithMetrics(m.metrics),
		recordstore.WithClock(m.clock),
	}
	if !m.cfg.Backup {
		opts = append(opts, recordstore.WithoutBackup())
	}
	return append(opts, m.storeOpts...)
}

// seedLockout loads the trailing unlock failures of v into the tracker
// the first time the vault is seen.
func (m *Manager) seedLockout(ctx context.Context, v *vault) {
	if m.lockout.seeded(v.path) {
		return
	}
	var (
		n    int
		last time.Time
	)
	if v.audit != nil {
		var err error
		n, last, err = v.audit.TrailingFailures(ctx, audit.EventVaultUnlock)
		if err != nil {
			m.logger.Warn("failed to read unlock history", "vault", v.path, "error", err)
		}
	}
	m.lockout.seed(v.path, n, last)
}

// appendAudit records e. Failures are logged and counted but never fail
// the audited operation.
func (m *Manager) appendAudit(ctx context.Context, v *vault, e audit.Entry) {
	if v.audit == nil {
		return
	}
	if _, err := v.audit.Append(context.WithoutCancel(ctx), e); err != nil {
		logger.L(ctx).Error("audit append failed", "vault", v.path, "event", e.Event, "error", err)
	}
}

func (m *Manager) checkPassphrase(passphrase []byte) error {
	if len(passphrase) == 0 {
		return domain.ErrInvalidParameters.WithDetails("passphrase is required")
	}
	if m.cfg.MinPassphraseScore <= 0 {
		return nil
	}
	score := zxcvbn.PasswordStrength(string(passphrase), []string{"credvault"}).Score
	if score < m.cfg.MinPassphraseScore {
		return domain.ErrInvalidParameters.WithDetails(
			fmt.Sprintf("passphrase too weak: score %d, need %d", score, m.cfg.MinPassphraseScore))
	}
	return nil
}

// derive runs the KDF in its own goroutine so that ctx can abandon it.
// An abandoned key is zeroed when the derivation finishes.
func (m *Manager) derive(ctx context.Context, passphrase, salt []byte, p kdf.Params) ([]byte, error) {
	pass := bytes.Clone(passphrase)
	type result struct {
		key []byte
		err error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		defer kdf.Zero(pass)
		key, err := kdf.DeriveWithFloor(pass, salt, p, m.cfg.KDFFloor)
		done <- result{key, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			r := <-done
			kdf.Zero(r.key)
		}()
		return nil, ctx.Err()
	case r := <-done:
		m.metrics.ObserveKDF(time.Since(start))
		return r.key, r.err
	}
}

func (m *Manager) info(v *vault) *domain.VaultInfo {
	h := v.store.Header()
	return &domain.VaultInfo{
		Path:      v.path,
		Version:   h.Version,
		Cipher:    string(h.Cipher),
		Salt:      h.Salt,
		KDFTime:   h.KDF.Time,
		KDFMemory: h.KDF.MemoryKiB,
		KDFThread: h.KDF.Threads,
		CreatedAt: h.CreatedAt,
		Records:   v.store.Len(),
	}
}

func (m *Manager) vaultStats() []metric.VaultStat {
	var out []metric.VaultStat
	m.vaults.Range(func(path string, v *vault) bool {
		out = append(out, metric.VaultStat{
			Path:      path,
			Records:   v.store.Len(),
			SizeBytes: v.store.Size(),
		})
		return true
	})
	return out
}

func normalizePath(path string) (string, error) {
	if path == "" {
		return "", domain.ErrInvalidParameters.WithDetails("vault path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", domain.ErrInvalidParameters.WithCause(err)
	}
	return abs, nil
}

func recordCipher(master []byte, typ adaptive.CipherType) (adaptive.Cipher, []byte, error) {
	subkey, err := kdf.Subkey(master, recordKeyInfo, kdf.KeyLength)
	if err != nil {
		return nil, nil, err
	}
	c, err := adaptive.NewWithType(subkey, typ)
	if err != nil {
		kdf.Zero(subkey)
		return nil, nil, domain.ErrCorruptStore.WithCause(err)
	}
	return c, subkey, nil
}

// seal encrypts plaintext into r under a fresh nonce.
func seal(c adaptive.Cipher, r recordstore.Record, plaintext []byte) (recordstore.Record, error) {
	nonce, err := adaptive.NewNonce(c)
	if err != nil {
		return recordstore.Record{}, err
	}
	r.Nonce = nonce
	r.Ciphertext, r.Tag, err = c.Encrypt(nonce, plaintext, r.AssociatedData())
	if err != nil {
		return recordstore.Record{}, err
	}
	return r, nil
}

func unseal(c adaptive.Cipher, r recordstore.Record) ([]byte, error) {
	return c.Decrypt(r.Nonce, r.Ciphertext, r.Tag, r.AssociatedData())
}

func verifyCanary(c adaptive.Cipher, canary recordstore.Record) bool {
	pt, err := unseal(c, canary)
	if err != nil {
		return false
	}
	defer kdf.Zero(pt)
	return bytes.Equal(pt, canaryPlaintext)
}
