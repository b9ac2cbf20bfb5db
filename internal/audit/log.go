package audit

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/credvault/internal/core/domain"
	"github.com/yndnr/credvault/internal/storage"
	"github.com/yndnr/credvault/internal/telemetry/metric"
)

var (
	entryPrefix = []byte("e/")
	headKey     = []byte("m/head")
)

// genesisHash is the PrevHash of the first entry.
var genesisHash = make([]byte, sha256.Size)

func entryKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte(nil), entryPrefix...), seq)
}

// Log is an append-only, hash-chained audit trail stored in a KVEngine.
//
// Every entry commits to its predecessor's hash and the head record
// commits to the last entry, so edits, reordering and truncation of the
// tail are all detectable by Verify.
type Log struct {
	kv      storage.KVEngine
	logger  *slog.Logger
	metrics *metric.Registry
	clock   func() time.Time

	mu      sync.Mutex
	seq     uint64
	head    []byte
	entropy io.Reader
}

// Option configures a Log.
type Option func(*Log)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metric.Registry) Option {
	return func(l *Log) {
		l.metrics = m
	}
}

// WithClock sets the time source for entry timestamps.
func WithClock(clock func() time.Time) Option {
	return func(l *Log) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// Open loads the chain head from kv. The log does not own kv; closing it
// is up to the caller.
func Open(ctx context.Context, kv storage.KVEngine, opts ...Option) (*Log, error) {
	l := &Log{
		kv:      kv,
		logger:  slog.Default(),
		clock:   time.Now,
		head:    genesisHash,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(l)
	}

	raw, err := kv.Get(ctx, headKey)
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("audit: read head: %w", err)
	}
	seq, hash, err := decodeHead(raw)
	if err != nil {
		return nil, domain.ErrAuditChainBroken.WithDetails("unreadable head").WithCause(err)
	}
	l.seq, l.head = seq, hash
	return l, nil
}

func encodeHead(seq uint64, hash []byte) []byte {
	b := binary.BigEndian.AppendUint64(nil, seq)
	return append(b, hash...)
}

func decodeHead(b []byte) (uint64, []byte, error) {
	if len(b) != 8+sha256.Size {
		return 0, nil, fmt.Errorf("head length %d", len(b))
	}
	return binary.BigEndian.Uint64(b), append([]byte(nil), b[8:]...), nil
}

// Append adds an entry built from e's Event, RecordID, Outcome and Code,
// and returns it with the chain fields filled in.
func (l *Log) Append(ctx context.Context, e Entry) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	id, err := ulid.New(ulid.Timestamp(now), l.entropy)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: new id: %w", err)
	}

	e.Seq = l.seq + 1
	e.ID = id
	e.Timestamp = now.UnixMilli()
	e.PrevHash = l.head
	e.Hash = e.computeHash()

	err = l.kv.SetMany(ctx, []storage.KV{
		{Key: entryKey(e.Seq), Value: e.marshal()},
		{Key: headKey, Value: encodeHead(e.Seq, e.Hash)},
	})
	if err != nil {
		l.metrics.RecordAuditAppend(metric.ResultFailure)
		l.logger.Error("audit append failed", "event", string(e.Event), "error", err)
		return Entry{}, fmt.Errorf("audit: append: %w", err)
	}

	l.seq, l.head = e.Seq, e.Hash
	l.metrics.RecordAuditAppend(metric.ResultSuccess)
	return e, nil
}

// Len returns the number of entries.
func (l *Log) Len() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// scan decodes every entry in sequence order.
func (l *Log) scan(ctx context.Context, fn func(Entry) error) error {
	var cbErr error
	err := l.kv.Scan(ctx, entryPrefix, func(key, value []byte) bool {
		e, err := unmarshalEntry(value)
		if err != nil {
			cbErr = fmt.Errorf("entry %x: %w", key[len(entryPrefix):], err)
			return false
		}
		if cbErr = fn(e); cbErr != nil {
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return cbErr
}

// Verify walks the chain and checks every link and the head record.
// It returns the number of verified entries, or
// domain.ErrAuditChainBroken naming the first bad entry.
func (l *Log) Verify(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		count uint64
		prev  = genesisHash
	)
	err := l.scan(ctx, func(e Entry) error {
		switch {
		case e.Seq != count+1:
			return fmt.Errorf("entry %d: expected sequence %d", e.Seq, count+1)
		case !bytes.Equal(e.PrevHash, prev):
			return fmt.Errorf("entry %d: previous hash mismatch", e.Seq)
		case !bytes.Equal(e.Hash, e.computeHash()):
			return fmt.Errorf("entry %d: hash mismatch", e.Seq)
		}
		count++
		prev = e.Hash
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return count, ctxErr
		}
		return count, domain.ErrAuditChainBroken.WithDetails(err.Error())
	}

	raw, err := l.kv.Get(ctx, headKey)
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		if count != 0 {
			return count, domain.ErrAuditChainBroken.WithDetails("head record missing")
		}
		return 0, nil
	case err != nil:
		return count, fmt.Errorf("audit: read head: %w", err)
	}
	seq, hash, err := decodeHead(raw)
	if err != nil {
		return count, domain.ErrAuditChainBroken.WithDetails("unreadable head").WithCause(err)
	}
	if seq != count || !bytes.Equal(hash, prev) {
		return count, domain.ErrAuditChainBroken.WithDetails(
			fmt.Sprintf("head names entry %d but chain ends at %d", seq, count))
	}
	return count, nil
}

// Entries returns the last limit entries in order, or all when limit <= 0.
func (l *Log) Entries(ctx context.Context, limit int) ([]Entry, error) {
	var out []Entry
	err := l.scan(ctx, func(e Entry) error {
		out = append(out, e)
		if limit > 0 && len(out) > limit {
			out = out[1:]
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit: read entries: %w", err)
	}
	return out, nil
}

// TrailingFailures counts the failures of event since its last success
// and returns the time of the most recent one. Denied attempts neither
// count nor reset.
func (l *Log) TrailingFailures(ctx context.Context, event Event) (int, time.Time, error) {
	var (
		n    int
		last int64
	)
	err := l.scan(ctx, func(e Entry) error {
		if e.Event != event {
			return nil
		}
		switch e.Outcome {
		case OutcomeSuccess:
			n, last = 0, 0
		case OutcomeFailure:
			n++
			last = e.Timestamp
		}
		return nil
	})
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("audit: read entries: %w", err)
	}
	if n == 0 {
		return 0, time.Time{}, nil
	}
	return n, time.UnixMilli(last), nil
}
