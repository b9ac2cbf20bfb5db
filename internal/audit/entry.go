package audit

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"google.golang.org/protobuf/encoding/protowire"
)

// Event names an audited operation.
type Event string

const (
	EventVaultCreate  Event = "vault.create"
	EventVaultUnlock  Event = "vault.unlock"
	EventVaultLock    Event = "vault.lock"
	EventRecordAdd    Event = "record.add"
	EventRecordGet    Event = "record.get"
	EventRecordUpdate Event = "record.update"
	EventRecordDelete Event = "record.delete"
)

// Outcome is the result of an audited operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	// OutcomeDenied marks attempts refused before being tried, such as
	// unlocks during a lockout.
	OutcomeDenied Outcome = "denied"
)

// Entry is one link of the audit chain.
type Entry struct {
	Seq       uint64    `json:"seq"`
	ID        ulid.ULID `json:"id"`
	Timestamp int64     `json:"timestamp"` // Unix milliseconds
	Event     Event     `json:"event"`
	RecordID  uint64    `json:"record_id,omitempty"` // 0 when not about a record
	Outcome   Outcome   `json:"outcome"`
	Code      string    `json:"code,omitempty"` // error code on failure
	PrevHash  []byte    `json:"prev_hash"`
	Hash      []byte    `json:"hash"`
}

// Field numbers of the entry encoding.
const (
	fieldSeq       protowire.Number = 1
	fieldID        protowire.Number = 2
	fieldTimestamp protowire.Number = 3
	fieldEvent     protowire.Number = 4
	fieldRecordID  protowire.Number = 5
	fieldOutcome   protowire.Number = 6
	fieldCode      protowire.Number = 7
	fieldPrevHash  protowire.Number = 8
	fieldHash      protowire.Number = 9
)

var errMalformedEntry = errors.New("audit: malformed entry")

// body encodes the hashed fields of e.
func (e *Entry) body() []byte {
	b := make([]byte, 0, 96)
	b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, e.Seq)
	b = protowire.AppendTag(b, fieldID, protowire.BytesType)
	b = protowire.AppendBytes(b, e.ID[:])
	b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Timestamp))
	b = protowire.AppendTag(b, fieldEvent, protowire.BytesType)
	b = protowire.AppendString(b, string(e.Event))
	if e.RecordID != 0 {
		b = protowire.AppendTag(b, fieldRecordID, protowire.VarintType)
		b = protowire.AppendVarint(b, e.RecordID)
	}
	b = protowire.AppendTag(b, fieldOutcome, protowire.BytesType)
	b = protowire.AppendString(b, string(e.Outcome))
	if e.Code != "" {
		b = protowire.AppendTag(b, fieldCode, protowire.BytesType)
		b = protowire.AppendString(b, e.Code)
	}
	return b
}

// computeHash returns sha256(prev || body).
func (e *Entry) computeHash() []byte {
	h := sha256.New()
	h.Write(e.PrevHash)
	h.Write(e.body())
	return h.Sum(nil)
}

// marshal encodes the full entry including both hashes.
func (e *Entry) marshal() []byte {
	b := e.body()
	b = protowire.AppendTag(b, fieldPrevHash, protowire.BytesType)
	b = protowire.AppendBytes(b, e.PrevHash)
	b = protowire.AppendTag(b, fieldHash, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Hash)
	return b
}

func unmarshalEntry(b []byte) (Entry, error) {
	var e Entry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Entry{}, fmt.Errorf("%w: %v", errMalformedEntry, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType && (num == fieldSeq || num == fieldTimestamp || num == fieldRecordID):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Entry{}, fmt.Errorf("%w: %v", errMalformedEntry, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldSeq:
				e.Seq = v
			case fieldTimestamp:
				e.Timestamp = int64(v)
			case fieldRecordID:
				e.RecordID = v
			}
		case typ == protowire.BytesType && num >= fieldID && num <= fieldHash:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Entry{}, fmt.Errorf("%w: %v", errMalformedEntry, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldID:
				if len(v) != len(e.ID) {
					return Entry{}, fmt.Errorf("%w: id length %d", errMalformedEntry, len(v))
				}
				copy(e.ID[:], v)
			case fieldEvent:
				e.Event = Event(v)
			case fieldOutcome:
				e.Outcome = Outcome(v)
			case fieldCode:
				e.Code = string(v)
			case fieldPrevHash:
				e.PrevHash = append([]byte(nil), v...)
			case fieldHash:
				e.Hash = append([]byte(nil), v...)
			default:
				return Entry{}, fmt.Errorf("%w: field %d", errMalformedEntry, num)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Entry{}, fmt.Errorf("%w: %v", errMalformedEntry, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return e, nil
}
