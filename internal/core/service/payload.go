package service

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/yndnr/credvault/pkg/crypto/kdf"
)

// Canary plaintext sealed at vault creation and checked on every unlock.
var canaryPlaintext = []byte("credvault-canary-v1")

// recordKeyInfo is the HKDF info for the record-encryption subkey.
const recordKeyInfo = "credvault/records/v1"

const (
	fieldUsername protowire.Number = 1
	fieldPassword protowire.Number = 2
)

var errBadPayload = errors.New("service: malformed record payload")

// secret is the part of a credential that is only stored encrypted.
type secret struct {
	Username string
	Password string
}

func (s secret) marshal() []byte {
	b := make([]byte, 0, len(s.Username)+len(s.Password)+8)
	b = protowire.AppendTag(b, fieldUsername, protowire.BytesType)
	b = protowire.AppendString(b, s.Username)
	b = protowire.AppendTag(b, fieldPassword, protowire.BytesType)
	b = protowire.AppendString(b, s.Password)
	return b
}

// unmarshalSecret decodes a payload and zeroes it.
func unmarshalSecret(b []byte) (secret, error) {
	defer kdf.Zero(b)

	var s secret
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return secret{}, errBadPayload
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return secret{}, errBadPayload
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return secret{}, errBadPayload
		}
		b = b[n:]
		switch num {
		case fieldUsername:
			s.Username = string(v)
		case fieldPassword:
			s.Password = string(v)
		}
	}
	return s, nil
}
