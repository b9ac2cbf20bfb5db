package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yndnr/credvault/internal/core/domain"
	"github.com/yndnr/credvault/internal/storage"
	"github.com/yndnr/credvault/internal/storage/memory"
)

func newTestLog(t *testing.T) (*Log, *memory.KV) {
	t.Helper()
	kv := memory.NewKV()
	l, err := Open(context.Background(), kv)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return l, kv
}

func appendAll(t *testing.T, l *Log, entries ...Entry) {
	t.Helper()
	for _, e := range entries {
		if _, err := l.Append(context.Background(), e); err != nil {
			t.Fatalf("Append(%s) error = %v", e.Event, err)
		}
	}
}

func sampleEntries() []Entry {
	return []Entry{
		{Event: EventVaultCreate, Outcome: OutcomeSuccess},
		{Event: EventVaultUnlock, Outcome: OutcomeSuccess},
		{Event: EventRecordAdd, RecordID: 1, Outcome: OutcomeSuccess},
		{Event: EventRecordGet, RecordID: 1, Outcome: OutcomeFailure, Code: "CV-DATA-4220"},
		{Event: EventVaultLock, Outcome: OutcomeSuccess},
	}
}

func TestLog_AppendChains(t *testing.T) {
	l, _ := newTestLog(t)
	ctx := context.Background()

	first, err := l.Append(ctx, Entry{Event: EventVaultCreate, Outcome: OutcomeSuccess})
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.Append(ctx, Entry{Event: EventVaultUnlock, Outcome: OutcomeSuccess})
	if err != nil {
		t.Fatal(err)
	}

	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("sequences = %d, %d, want 1, 2", first.Seq, second.Seq)
	}
	if string(second.PrevHash) != string(first.Hash) {
		t.Error("second entry does not link to first")
	}
	if first.ID.Compare(second.ID) >= 0 {
		t.Error("ids are not increasing")
	}
	if l.Len() != 2 {
		t.Errorf("Len() = %d, want 2", l.Len())
	}
}

func TestLog_EntriesRoundTrip(t *testing.T) {
	l, _ := newTestLog(t)
	appendAll(t, l, sampleEntries()...)

	got, err := l.Entries(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	want := sampleEntries()
	if len(got) != len(want) {
		t.Fatalf("Entries() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Event != want[i].Event || got[i].RecordID != want[i].RecordID ||
			got[i].Outcome != want[i].Outcome || got[i].Code != want[i].Code {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	tail, err := l.Entries(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 2 || tail[0].Seq != 4 || tail[1].Seq != 5 {
		t.Errorf("Entries(2) = %+v", tail)
	}
}

func TestLog_ReopenContinuesChain(t *testing.T) {
	l, kv := newTestLog(t)
	appendAll(t, l, sampleEntries()...)

	reopened, err := Open(context.Background(), kv)
	if err != nil {
		t.Fatal(err)
	}
	e, err := reopened.Append(context.Background(), Entry{Event: EventVaultUnlock, Outcome: OutcomeSuccess})
	if err != nil {
		t.Fatal(err)
	}
	if e.Seq != 6 {
		t.Errorf("Seq after reopen = %d, want 6", e.Seq)
	}
	if n, err := reopened.Verify(context.Background()); err != nil || n != 6 {
		t.Errorf("Verify() = %d, %v, want 6, nil", n, err)
	}
}

func TestLog_VerifyDetectsTampering(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		tamper func(t *testing.T, kv storage.KVEngine)
	}{
		{"edited entry", func(t *testing.T, kv storage.KVEngine) {
			raw, _ := kv.Get(ctx, entryKey(3))
			e, err := unmarshalEntry(raw)
			if err != nil {
				t.Fatal(err)
			}
			e.Outcome = OutcomeFailure
			kv.Set(ctx, entryKey(3), e.marshal())
		}},
		{"rehashed entry", func(t *testing.T, kv storage.KVEngine) {
			raw, _ := kv.Get(ctx, entryKey(2))
			e, _ := unmarshalEntry(raw)
			e.RecordID = 99
			e.Hash = e.computeHash()
			kv.Set(ctx, entryKey(2), e.marshal())
		}},
		{"deleted middle entry", func(t *testing.T, kv storage.KVEngine) {
			kv.Delete(ctx, entryKey(3))
		}},
		{"swapped entries", func(t *testing.T, kv storage.KVEngine) {
			a, _ := kv.Get(ctx, entryKey(2))
			b, _ := kv.Get(ctx, entryKey(3))
			kv.Set(ctx, entryKey(2), b)
			kv.Set(ctx, entryKey(3), a)
		}},
		{"truncated tail", func(t *testing.T, kv storage.KVEngine) {
			kv.Delete(ctx, entryKey(5))
		}},
		{"garbage entry", func(t *testing.T, kv storage.KVEngine) {
			kv.Set(ctx, entryKey(4), []byte{0xff, 0xff, 0xff})
		}},
		{"head removed", func(t *testing.T, kv storage.KVEngine) {
			kv.Delete(ctx, headKey)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, kv := newTestLog(t)
			appendAll(t, l, sampleEntries()...)
			if _, err := l.Verify(ctx); err != nil {
				t.Fatalf("Verify() before tampering error = %v", err)
			}

			tt.tamper(t, kv)

			if _, err := l.Verify(ctx); !errors.Is(err, domain.ErrAuditChainBroken) {
				t.Errorf("Verify() error = %v, want ErrAuditChainBroken", err)
			}
		})
	}
}

func TestLog_VerifyEmpty(t *testing.T) {
	l, _ := newTestLog(t)
	if n, err := l.Verify(context.Background()); err != nil || n != 0 {
		t.Errorf("Verify() = %d, %v, want 0, nil", n, err)
	}
}

func TestLog_TrailingFailures(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	clock := func() time.Time { return now }

	l, err := Open(context.Background(), memory.NewKV(), WithClock(clock))
	if err != nil {
		t.Fatal(err)
	}

	appendAll(t, l,
		Entry{Event: EventVaultUnlock, Outcome: OutcomeFailure},
		Entry{Event: EventVaultUnlock, Outcome: OutcomeSuccess},
		Entry{Event: EventVaultUnlock, Outcome: OutcomeFailure},
		Entry{Event: EventRecordGet, Outcome: OutcomeSuccess},
		Entry{Event: EventVaultUnlock, Outcome: OutcomeDenied},
		Entry{Event: EventVaultUnlock, Outcome: OutcomeFailure},
	)

	n, last, err := l.TrailingFailures(context.Background(), EventVaultUnlock)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("TrailingFailures() = %d, want 2", n)
	}
	if !last.Equal(now) {
		t.Errorf("last failure = %v, want %v", last, now)
	}

	appendAll(t, l, Entry{Event: EventVaultUnlock, Outcome: OutcomeSuccess})
	if n, _, _ := l.TrailingFailures(context.Background(), EventVaultUnlock); n != 0 {
		t.Errorf("TrailingFailures() after success = %d, want 0", n)
	}
}

func TestLog_AppendCancelled(t *testing.T) {
	l, _ := newTestLog(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := l.Append(ctx, Entry{Event: EventVaultLock, Outcome: OutcomeSuccess}); !errors.Is(err, context.Canceled) {
		t.Errorf("Append() error = %v, want context.Canceled", err)
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d, want 0", l.Len())
	}
}

func TestUnmarshalEntry_SkipsUnknownFields(t *testing.T) {
	e := Entry{Seq: 1, Event: EventVaultLock, Outcome: OutcomeSuccess, PrevHash: genesisHash}
	e.Hash = e.computeHash()
	raw := append(e.marshal(), 0x50, 0x01) // field 10, varint 1

	got, err := unmarshalEntry(raw)
	if err != nil {
		t.Fatalf("unmarshalEntry() error = %v", err)
	}
	if got.Seq != 1 || got.Event != EventVaultLock {
		t.Errorf("unmarshalEntry() = %+v", got)
	}
}
