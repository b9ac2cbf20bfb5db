package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/credvault/internal/audit"
	"github.com/yndnr/credvault/internal/core/domain"
	"github.com/yndnr/credvault/internal/storage/recordstore"
	"github.com/yndnr/credvault/internal/telemetry/metric"
	"github.com/yndnr/credvault/pkg/crypto/adaptive"
	"github.com/yndnr/credvault/pkg/crypto/kdf"
)

// Record operation names used in metrics.
const (
	opList   = "list"
	opAdd    = "add"
	opGet    = "get"
	opUpdate = "update"
	opDelete = "delete"
)

// CredentialPatch selects the fields changed by Patch. Nil fields keep
// their current value.
type CredentialPatch struct {
	Label    *string
	Username *string
	Password *string
}

// Session is an unlocked view of one vault.
//
// A Session is safe for concurrent use. Once locked, by Lock, by the
// manager or by the idle timeout, every call fails with SessionLocked.
type Session struct {
	m    *Manager
	v    *vault
	idle time.Duration

	mu         sync.RWMutex
	cipher     adaptive.Cipher
	key        []byte
	unlockedAt time.Time
	deadline   atomic.Int64 // Unix nanoseconds, 0 without idle timeout
}

func newSession(m *Manager, v *vault, c adaptive.Cipher, key []byte) *Session {
	s := &Session{
		m:          m,
		v:          v,
		idle:       m.cfg.IdleTimeout,
		cipher:     c,
		key:        key,
		unlockedAt: m.clock(),
	}
	s.touch()
	v.attach(s)
	m.metrics.IncSessionActive()
	return s
}

// Path returns the absolute vault path.
func (s *Session) Path() string {
	return s.v.path
}

// UnlockedAt returns the time the session was unlocked.
func (s *Session) UnlockedAt() time.Time {
	return s.unlockedAt
}

// State reports whether the session is still unlocked. An expired
// session is locked by this call.
func (s *Session) State() domain.SessionState {
	if s.expired() {
		s.lock("idle timeout")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cipher == nil {
		return domain.StateLocked
	}
	return domain.StateUnlocked
}

// Deadline returns when the session locks itself if left idle. It is
// the zero time when no idle timeout is configured.
func (s *Session) Deadline() time.Time {
	d := s.deadline.Load()
	if d == 0 {
		return time.Time{}
	}
	return time.Unix(0, d)
}

// Lock zeroes the session key. It is idempotent.
func (s *Session) Lock() {
	s.lock("explicit")
}

func (s *Session) lock(reason string) {
	s.mu.Lock()
	if s.cipher == nil {
		s.mu.Unlock()
		return
	}
	kdf.Zero(s.key)
	s.key = nil
	s.cipher = nil
	s.mu.Unlock()

	s.v.detach(s)
	s.m.metrics.DecSessionActive()
	s.m.appendAudit(context.Background(), s.v, audit.Entry{
		Event:   audit.EventVaultLock,
		Outcome: audit.OutcomeSuccess,
	})
	s.m.logger.Info("vault locked", "vault", s.v.path, "reason", reason)
}

func (s *Session) touch() {
	if s.idle <= 0 {
		return
	}
	s.deadline.Store(s.m.clock().Add(s.idle).UnixNano())
}

func (s *Session) expired() bool {
	d := s.deadline.Load()
	return d != 0 && s.m.clock().UnixNano() >= d
}

// do runs fn with the session cipher held under the read lock.
func (s *Session) do(ctx context.Context, fn func(c adaptive.Cipher) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.expired() {
		s.lock("idle timeout")
		return domain.ErrSessionLocked.WithDetails("idle timeout")
	}

	s.mu.RLock()
	if s.cipher == nil {
		s.mu.RUnlock()
		return domain.ErrSessionLocked
	}
	err := fn(s.cipher)
	s.mu.RUnlock()

	if err == nil {
		s.touch()
	}
	return err
}

// finish records the metrics and audit entry of a record operation.
func (s *Session) finish(ctx context.Context, op string, event audit.Event, id uint64, err error) {
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return
	}
	e := audit.Entry{Event: event, RecordID: id, Outcome: audit.OutcomeSuccess}
	result := metric.ResultSuccess
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrSessionLocked):
		e.Outcome, e.Code = audit.OutcomeDenied, domain.ErrSessionLocked.Code
		result = metric.ResultDenied
	default:
		e.Outcome, e.Code = audit.OutcomeFailure, domain.GetErrorCode(err)
		result = metric.ResultFailure
	}
	s.m.metrics.RecordOp(op, result)
	if event != "" {
		s.m.appendAudit(ctx, s.v, e)
	}
}

// List returns the summaries of every record. Nothing is decrypted.
func (s *Session) List(ctx context.Context) ([]domain.RecordSummary, error) {
	var out []domain.RecordSummary
	err := s.do(ctx, func(adaptive.Cipher) error {
		if err := s.v.store.Refresh(); err != nil {
			return err
		}
		out = s.v.store.List()
		return nil
	})
	s.finish(ctx, opList, "", 0, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Add encrypts and stores a new credential and returns its id.
func (s *Session) Add(ctx context.Context, label, username, password string) (uint64, error) {
	var id uint64
	err := s.do(ctx, func(c adaptive.Cipher) error {
		cred := domain.Credential{Label: label, Username: username, Password: password}
		if err := cred.Validate(); err != nil {
			return err
		}
		var err error
		id, err = s.v.store.Insert(ctx, func(id uint64, now time.Time) (recordstore.Record, error) {
			r := recordstore.Record{
				ID:         id,
				Label:      label,
				CreatedAt:  now.UnixMilli(),
				ModifiedAt: now.UnixMilli(),
			}
			return sealSecret(c, r, secret{Username: username, Password: password})
		})
		return err
	})
	s.finish(ctx, opAdd, audit.EventRecordAdd, id, err)
	if err != nil {
		return 0, err
	}
	s.m.logger.Debug("record added", "vault", s.v.path, "id", id)
	return id, nil
}

// Get decrypts the credential with the given id.
func (s *Session) Get(ctx context.Context, id uint64) (*domain.Credential, error) {
	var cred *domain.Credential
	err := s.do(ctx, func(c adaptive.Cipher) error {
		if err := s.v.store.Refresh(); err != nil {
			return err
		}
		r, err := s.v.store.Get(id)
		if err != nil {
			return err
		}
		sec, err := openSecret(c, r)
		if err != nil {
			return err
		}
		cred = &domain.Credential{
			ID:         r.ID,
			Label:      r.Label,
			Username:   sec.Username,
			Password:   sec.Password,
			CreatedAt:  r.CreatedAt,
			ModifiedAt: r.ModifiedAt,
		}
		return nil
	})
	s.finish(ctx, opGet, audit.EventRecordGet, id, err)
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// Update replaces every field of the credential with the given id.
func (s *Session) Update(ctx context.Context, id uint64, label, username, password string) error {
	return s.Patch(ctx, id, CredentialPatch{
		Label:    &label,
		Username: &username,
		Password: &password,
	})
}

// Patch changes the selected fields of a credential. The record is
// re-encrypted under a fresh nonce. When both secret fields are given
// the old ciphertext is not decrypted, so a damaged record can be
// overwritten.
func (s *Session) Patch(ctx context.Context, id uint64, p CredentialPatch) error {
	err := s.do(ctx, func(c adaptive.Cipher) error {
		return s.v.store.Update(ctx, id, func(cur recordstore.Record, now time.Time) (recordstore.Record, error) {
			var sec secret
			if p.Username == nil || p.Password == nil {
				var err error
				if sec, err = openSecret(c, cur); err != nil {
					return recordstore.Record{}, err
				}
			}
			label := cur.Label
			if p.Label != nil {
				label = *p.Label
			}
			if p.Username != nil {
				sec.Username = *p.Username
			}
			if p.Password != nil {
				sec.Password = *p.Password
			}
			cred := domain.Credential{Label: label, Username: sec.Username, Password: sec.Password}
			if err := cred.Validate(); err != nil {
				return recordstore.Record{}, err
			}

			modified := now.UnixMilli()
			if modified < cur.CreatedAt {
				modified = cur.CreatedAt
			}
			return sealSecret(c, recordstore.Record{
				ID:         cur.ID,
				Label:      label,
				CreatedAt:  cur.CreatedAt,
				ModifiedAt: modified,
			}, sec)
		})
	})
	s.finish(ctx, opUpdate, audit.EventRecordUpdate, id, err)
	return err
}

// Delete removes the credential with the given id.
func (s *Session) Delete(ctx context.Context, id uint64) error {
	err := s.do(ctx, func(adaptive.Cipher) error {
		return s.v.store.Delete(ctx, id)
	})
	s.finish(ctx, opDelete, audit.EventRecordDelete, id, err)
	return err
}

func sealSecret(c adaptive.Cipher, r recordstore.Record, sec secret) (recordstore.Record, error) {
	pt := sec.marshal()
	defer kdf.Zero(pt)
	return seal(c, r, pt)
}

func openSecret(c adaptive.Cipher, r recordstore.Record) (secret, error) {
	pt, err := unseal(c, r)
	if err != nil {
		return secret{}, domain.ErrIntegrityFailure.
			WithDetails(fmt.Sprintf("record %d", r.ID)).
			WithCause(err)
	}
	sec, err := unmarshalSecret(pt)
	if err != nil {
		return secret{}, domain.ErrIntegrityFailure.
			WithDetails(fmt.Sprintf("record %d", r.ID)).
			WithCause(err)
	}
	return sec, nil
}
