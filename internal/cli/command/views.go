package command

import (
	"strconv"
	"time"

	"github.com/yndnr/credvault/internal/audit"
	"github.com/yndnr/credvault/internal/core/domain"
)

// masked replaces a password that was not asked for.
const masked = "********"

type recordView struct {
	ID       uint64    `json:"id" yaml:"id"`
	Label    string    `json:"label" yaml:"label"`
	Created  time.Time `json:"created" yaml:"created"`
	Modified time.Time `json:"modified" yaml:"modified"`
}

func recordViews(sums []domain.RecordSummary) []recordView {
	out := make([]recordView, 0, len(sums))
	for _, s := range sums {
		out = append(out, recordView{
			ID:       s.ID,
			Label:    s.Label,
			Created:  time.UnixMilli(s.CreatedAt),
			Modified: time.UnixMilli(s.ModifiedAt),
		})
	}
	return out
}

type credentialView struct {
	ID       uint64    `json:"id" yaml:"id"`
	Label    string    `json:"label" yaml:"label"`
	Username string    `json:"username" yaml:"username"`
	Password string    `json:"password" yaml:"password"`
	Created  time.Time `json:"created" yaml:"created"`
	Modified time.Time `json:"modified" yaml:"modified"`
}

func newCredentialView(c *domain.Credential, show bool) credentialView {
	v := credentialView{
		ID:       c.ID,
		Label:    c.Label,
		Username: c.Username,
		Password: masked,
		Created:  time.UnixMilli(c.CreatedAt),
		Modified: time.UnixMilli(c.ModifiedAt),
	}
	if show {
		v.Password = c.Password
	}
	return v
}

type vaultView struct {
	Path      string    `json:"path" yaml:"path"`
	Version   uint16    `json:"version" yaml:"version"`
	Cipher    string    `json:"cipher" yaml:"cipher"`
	KDFTime   uint32    `json:"kdf_time" yaml:"kdf_time"`
	KDFMemory uint32    `json:"kdf_memory_kib" yaml:"kdf_memory_kib"`
	KDFThread uint8     `json:"kdf_threads" yaml:"kdf_threads"`
	Records   int       `json:"records" yaml:"records"`
	Created   time.Time `json:"created" yaml:"created"`
}

func newVaultView(i *domain.VaultInfo) vaultView {
	return vaultView{
		Path:      i.Path,
		Version:   i.Version,
		Cipher:    i.Cipher,
		KDFTime:   i.KDFTime,
		KDFMemory: i.KDFMemory,
		KDFThread: i.KDFThread,
		Records:   i.Records,
		Created:   i.CreatedAtTime(),
	}
}

type auditView struct {
	Seq     uint64    `json:"seq" yaml:"seq"`
	Time    time.Time `json:"time" yaml:"time"`
	Event   string    `json:"event" yaml:"event"`
	Record  string    `json:"record,omitempty" yaml:"record,omitempty"`
	Outcome string    `json:"outcome" yaml:"outcome"`
	Code    string    `json:"code,omitempty" yaml:"code,omitempty"`
	ID      string    `json:"id" yaml:"id" table:"wide"`
}

func auditViews(entries []audit.Entry) []auditView {
	out := make([]auditView, 0, len(entries))
	for _, e := range entries {
		v := auditView{
			Seq:     e.Seq,
			Time:    time.UnixMilli(e.Timestamp),
			Event:   string(e.Event),
			Outcome: string(e.Outcome),
			Code:    e.Code,
			ID:      e.ID.String(),
		}
		if e.RecordID != 0 {
			v.Record = strconv.FormatUint(e.RecordID, 10)
		}
		out = append(out, v)
	}
	return out
}

type statusView struct {
	Vault      string        `json:"vault" yaml:"vault"`
	State      string        `json:"state" yaml:"state"`
	UnlockedAt time.Time     `json:"unlocked_at" yaml:"unlocked_at"`
	LocksIn    time.Duration `json:"locks_in" yaml:"locks_in"`
}
