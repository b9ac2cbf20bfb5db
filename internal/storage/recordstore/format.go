package recordstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/yndnr/credvault/pkg/crypto/adaptive"
	"github.com/yndnr/credvault/pkg/crypto/kdf"
)

// Magic bytes identify vault files.
var magicBytes = []byte("CRDVLT\x00\x01")

const (
	// FormatVersion is the on-disk layout version written by this package.
	FormatVersion uint16 = 1

	checksumSize      = sha256.Size
	maxCiphertextSize = 1 << 20
	maxBlockCount     = 1 << 20
	maxSaltSize       = 64
)

type blockType uint8

const (
	blockCanary blockType = 1
	blockRecord blockType = 2
)

// Format errors. All of them mean the file cannot be trusted.
var (
	ErrInvalidMagic       = errors.New("recordstore: invalid magic bytes")
	ErrUnsupportedVersion = errors.New("recordstore: unsupported format version")
	ErrChecksumMismatch   = errors.New("recordstore: checksum mismatch")
	ErrTruncated          = errors.New("recordstore: truncated file")
	ErrMalformedBlock     = errors.New("recordstore: malformed record block")
)

var cipherCodes = map[adaptive.CipherType]uint8{
	adaptive.CipherAESGCM:   1,
	adaptive.CipherChaCha20: 2,
}

func cipherFromCode(code uint8) (adaptive.CipherType, bool) {
	for t, c := range cipherCodes {
		if c == code {
			return t, true
		}
	}
	return "", false
}

// Header holds the vault-wide attributes stored before the record blocks.
// Salt, KDF and Cipher are immutable after creation.
type Header struct {
	Version   uint16
	Cipher    adaptive.CipherType
	Salt      []byte
	KDF       kdf.Params
	CreatedAt int64 // Unix milliseconds
	NextID    uint64
}

// Record is one encrypted block as stored on disk.
type Record struct {
	ID         uint64
	Label      string
	CreatedAt  int64 // Unix milliseconds
	ModifiedAt int64 // Unix milliseconds
	Nonce      []byte
	Ciphertext []byte
	Tag        []byte
}

// recordADPrefix domain-separates record associated data.
var recordADPrefix = []byte("credvault/record/v1")

// AssociatedData returns the bytes authenticated alongside the ciphertext.
// It binds the id, timestamps and label so ciphertext cannot be moved
// between records or relabelled without detection.
func (r *Record) AssociatedData() []byte {
	ad := make([]byte, 0, len(recordADPrefix)+24+len(r.Label))
	ad = append(ad, recordADPrefix...)
	ad = binary.BigEndian.AppendUint64(ad, r.ID)
	ad = binary.BigEndian.AppendUint64(ad, uint64(r.CreatedAt))
	ad = binary.BigEndian.AppendUint64(ad, uint64(r.ModifiedAt))
	ad = append(ad, r.Label...)
	return ad
}

func (r Record) clone() Record {
	r.Nonce = bytes.Clone(r.Nonce)
	r.Ciphertext = bytes.Clone(r.Ciphertext)
	r.Tag = bytes.Clone(r.Tag)
	return r
}

func (r *Record) validate() error {
	switch {
	case len(r.Label) > math.MaxUint16:
		return fmt.Errorf("%w: label too long", ErrMalformedBlock)
	case len(r.Nonce) == 0 || len(r.Nonce) > math.MaxUint8:
		return fmt.Errorf("%w: bad nonce length %d", ErrMalformedBlock, len(r.Nonce))
	case len(r.Tag) == 0 || len(r.Tag) > math.MaxUint8:
		return fmt.Errorf("%w: bad tag length %d", ErrMalformedBlock, len(r.Tag))
	case len(r.Ciphertext) > maxCiphertextSize:
		return fmt.Errorf("%w: ciphertext too large", ErrMalformedBlock)
	}
	return nil
}

// state is the complete decoded content of a vault file.
type state struct {
	header  Header
	canary  Record
	records []Record // ascending by ID
}

func (s *state) clone() *state {
	next := &state{
		header:  s.header,
		canary:  s.canary.clone(),
		records: make([]Record, len(s.records)),
	}
	next.header.Salt = bytes.Clone(s.header.Salt)
	for i, r := range s.records {
		next.records[i] = r.clone()
	}
	return next
}

func (s *state) index(id uint64) int {
	for i := range s.records {
		if s.records[i].ID == id {
			return i
		}
	}
	return -1
}

// nonceInUse reports whether nonce is held by the canary or any record
// other than skipID.
func (s *state) nonceInUse(nonce []byte, skipID uint64) bool {
	if bytes.Equal(s.canary.Nonce, nonce) {
		return true
	}
	for i := range s.records {
		if s.records[i].ID != skipID && bytes.Equal(s.records[i].Nonce, nonce) {
			return true
		}
	}
	return false
}

// encodeImage serializes a state.
//
// Layout (big-endian):
//
//	magic[8] version u16 cipher u8 reserved u8 saltLen u8 salt
//	kdfTime u32 kdfMemory u32 kdfThreads u8 kdfKeyLen u8
//	createdAt i64 nextID u64 blockCount u32 checksum[32]
//	blocks...
//
// Each block is blockLen u32 followed by
//
//	type u8 id u64 created i64 modified i64 labelLen u16 label
//	nonceLen u8 nonce ctLen u32 | ct tagLen u8 tag
//
// The checksum covers the header fields and the index part of every block
// (everything left of the bar), so listing never depends on ciphertext.
func encodeImage(st *state) ([]byte, error) {
	code, ok := cipherCodes[st.header.Cipher]
	if !ok {
		return nil, fmt.Errorf("recordstore: unknown cipher %q", st.header.Cipher)
	}
	if len(st.header.Salt) == 0 || len(st.header.Salt) > maxSaltSize {
		return nil, fmt.Errorf("recordstore: bad salt length %d", len(st.header.Salt))
	}
	if st.header.KDF.KeyLen > math.MaxUint8 {
		return nil, fmt.Errorf("recordstore: kdf key length %d too large", st.header.KDF.KeyLen)
	}

	buf := make([]byte, 0, 256)
	buf = append(buf, magicBytes...)
	buf = binary.BigEndian.AppendUint16(buf, st.header.Version)
	buf = append(buf, code, 0)
	buf = append(buf, uint8(len(st.header.Salt)))
	buf = append(buf, st.header.Salt...)
	buf = binary.BigEndian.AppendUint32(buf, st.header.KDF.Time)
	buf = binary.BigEndian.AppendUint32(buf, st.header.KDF.MemoryKiB)
	buf = append(buf, st.header.KDF.Threads, uint8(st.header.KDF.KeyLen))
	buf = binary.BigEndian.AppendUint64(buf, uint64(st.header.CreatedAt))
	buf = binary.BigEndian.AppendUint64(buf, st.header.NextID)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(st.records)+1))

	hash := sha256.New()
	hash.Write(buf)

	var blocks []byte
	appendBlock := func(t blockType, r *Record) error {
		if err := r.validate(); err != nil {
			return err
		}
		body := appendIndex(nil, t, r)
		hash.Write(body)
		body = append(body, r.Ciphertext...)
		body = append(body, uint8(len(r.Tag)))
		body = append(body, r.Tag...)

		blocks = binary.BigEndian.AppendUint32(blocks, uint32(len(body)))
		blocks = append(blocks, body...)
		return nil
	}

	if err := appendBlock(blockCanary, &st.canary); err != nil {
		return nil, fmt.Errorf("canary: %w", err)
	}
	for i := range st.records {
		if err := appendBlock(blockRecord, &st.records[i]); err != nil {
			return nil, fmt.Errorf("record %d: %w", st.records[i].ID, err)
		}
	}

	buf = append(buf, hash.Sum(nil)...)
	return append(buf, blocks...), nil
}

func appendIndex(buf []byte, t blockType, r *Record) []byte {
	buf = append(buf, uint8(t))
	buf = binary.BigEndian.AppendUint64(buf, r.ID)
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.CreatedAt))
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.ModifiedAt))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(r.Label)))
	buf = append(buf, r.Label...)
	buf = append(buf, uint8(len(r.Nonce)))
	buf = append(buf, r.Nonce...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(r.Ciphertext)))
	return buf
}

// cursor reads big-endian fields and latches the first short read.
type cursor struct {
	buf []byte
	off int
	err error
}

func (c *cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || len(c.buf)-c.off < n {
		c.err = ErrTruncated
		return nil
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b
}

func (c *cursor) u8() uint8 {
	if b := c.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (c *cursor) u16() uint16 {
	if b := c.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (c *cursor) u32() uint32 {
	if b := c.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (c *cursor) u64() uint64 {
	if b := c.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// tagSpan picks the tag length of a block from its block length and its
// tag length byte. Neither is covered by the checksum, so when they
// disagree the one matching the cipher tag size wins. A tag of the wrong
// size fails authentication for that record alone.
func tagSpan(fromBlock, declared, remaining int) int {
	fits := func(n int) bool { return n > 0 && n <= math.MaxUint8 && n <= remaining }
	switch {
	case fromBlock == declared, !fits(fromBlock):
		return declared
	case !fits(declared), declared != adaptive.TagLength:
		return fromBlock
	default:
		return declared
	}
}

// decodeImage parses and verifies a vault file image. No record is
// returned unless the checksum matches.
func decodeImage(data []byte) (*state, error) {
	c := &cursor{buf: data}

	magic := c.take(len(magicBytes))
	if c.err != nil {
		return nil, c.err
	}
	if !bytes.Equal(magic, magicBytes) {
		return nil, ErrInvalidMagic
	}

	st := &state{}
	st.header.Version = c.u16()
	if c.err == nil && st.header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, st.header.Version)
	}
	code := c.u8()
	c.u8() // reserved
	saltLen := int(c.u8())
	st.header.Salt = bytes.Clone(c.take(saltLen))
	st.header.KDF.Time = c.u32()
	st.header.KDF.MemoryKiB = c.u32()
	st.header.KDF.Threads = c.u8()
	st.header.KDF.KeyLen = uint32(c.u8())
	st.header.CreatedAt = int64(c.u64())
	st.header.NextID = c.u64()
	count := c.u32()
	headerEnd := c.off
	expected := c.take(checksumSize)
	if c.err != nil {
		return nil, c.err
	}

	cipherType, ok := cipherFromCode(code)
	if !ok {
		return nil, fmt.Errorf("%w: unknown cipher code %d", ErrMalformedBlock, code)
	}
	st.header.Cipher = cipherType
	if err := kdf.DefaultCeiling.Check(st.header.KDF); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlock, err)
	}
	if count == 0 || count > maxBlockCount {
		return nil, fmt.Errorf("%w: block count %d", ErrMalformedBlock, count)
	}

	hash := sha256.New()
	hash.Write(data[:headerEnd])

	st.records = make([]Record, 0, count-1)
	for i := uint32(0); i < count; i++ {
		blockLen := int(c.u32())
		start := c.off

		t := blockType(c.u8())
		var r Record
		r.ID = c.u64()
		r.CreatedAt = int64(c.u64())
		r.ModifiedAt = int64(c.u64())
		r.Label = string(c.take(int(c.u16())))
		r.Nonce = bytes.Clone(c.take(int(c.u8())))
		ctLen := int(c.u32())
		if c.err != nil {
			return nil, c.err
		}
		hash.Write(data[start:c.off])

		if ctLen > maxCiphertextSize {
			return nil, fmt.Errorf("%w: ciphertext length %d", ErrMalformedBlock, ctLen)
		}
		r.Ciphertext = bytes.Clone(c.take(ctLen))
		tagLen := int(c.u8())
		if c.err != nil {
			return nil, c.err
		}
		r.Tag = bytes.Clone(c.take(tagSpan(blockLen-(c.off-start), tagLen, len(data)-c.off)))
		if c.err != nil {
			return nil, c.err
		}

		switch {
		case i == 0 && t == blockCanary:
			st.canary = r
		case i > 0 && t == blockRecord:
			st.records = append(st.records, r)
		default:
			return nil, fmt.Errorf("%w: unexpected block type %d at %d", ErrMalformedBlock, t, i)
		}
	}
	if c.off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedBlock, len(data)-c.off)
	}
	if !bytes.Equal(hash.Sum(nil), expected) {
		return nil, ErrChecksumMismatch
	}

	var prev uint64
	for _, r := range st.records {
		if r.ID == 0 || r.ID <= prev || r.ID >= st.header.NextID {
			return nil, fmt.Errorf("%w: record id %d out of order", ErrMalformedBlock, r.ID)
		}
		prev = r.ID
	}
	return st, nil
}
