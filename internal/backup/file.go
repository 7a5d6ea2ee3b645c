package backup

import (
	"bytes"
	"strings"

	"prefect-attendance/internal/attendance"
)

// Mode selects the on-disk form of a backup.
type Mode string

const (
	ModePlain  Mode = "plain"
	ModeXOR    Mode = "xor"
	ModeSealed Mode = "sealed"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModePlain:
		return ModePlain, nil
	case ModeXOR, "encrypted":
		return ModeXOR, nil
	case ModeSealed:
		return ModeSealed, nil
	}
	return "", attendance.ErrValidation("unknown backup mode: " + s)
}

// Ext is the conventional file extension for m.
func (m Mode) Ext() string {
	if m == ModePlain {
		return ".json"
	}
	return ".backup"
}

// EncodeFile renders env in mode m.
func EncodeFile(env Envelope, m Mode, passphrase string) ([]byte, error) {
	b, err := Marshal(env)
	if err != nil {
		return nil, err
	}
	switch m {
	case ModePlain, "":
		return b, nil
	case ModeXOR:
		s, err := Encrypt(b, passphrase)
		return []byte(s), err
	case ModeSealed:
		s, err := Seal(b, passphrase)
		return []byte(s), err
	}
	return nil, attendance.ErrValidation("unknown backup mode: " + string(m))
}

// DetectMode guesses how raw was produced.
func DetectMode(raw []byte) Mode {
	t := bytes.TrimSpace(raw)
	switch {
	case bytes.HasPrefix(t, []byte(SealedPrefix)):
		return ModeSealed
	case bytes.HasPrefix(t, []byte("{")):
		return ModePlain
	default:
		return ModeXOR
	}
}

// OpenFile decodes a backup file in any mode. It does not validate the result.
func OpenFile(raw []byte, passphrase string) (Envelope, error) {
	var (
		plain []byte
		err   error
	)
	switch DetectMode(raw) {
	case ModeSealed:
		plain, err = Open(string(raw), passphrase)
	case ModeXOR:
		plain, err = Decrypt(string(raw), passphrase)
	default:
		plain = raw
	}
	if err != nil {
		return Envelope{}, err
	}
	return Parse(plain)
}
