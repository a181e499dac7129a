package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const phcAlgorithm = "argon2id"

// Cost floors. Configurations below these are refused at construction and
// stored hashes below them are refused at parse time.
const (
	floorMemoryKB    uint32 = 8 * 1024
	floorTime        uint32 = 1
	floorParallelism uint8  = 1
	floorSaltBytes   uint32 = 16
	floorKeyBytes    uint32 = 16
)

// Config holds the argon2id cost parameters shared by the password hasher
// and the secret-token slow hash. Tune so a single Verify takes tens of
// milliseconds on production hardware.
type Config struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (c Config) check() error {
	switch {
	case c.Memory < floorMemoryKB:
		return fmt.Errorf("memory cost %d KB below floor %d KB", c.Memory, floorMemoryKB)
	case c.Time < floorTime:
		return fmt.Errorf("time cost %d below floor %d", c.Time, floorTime)
	case c.Parallelism < floorParallelism:
		return fmt.Errorf("parallelism %d below floor %d", c.Parallelism, floorParallelism)
	case c.SaltLength < floorSaltBytes:
		return fmt.Errorf("salt length %d below floor %d", c.SaltLength, floorSaltBytes)
	case c.KeyLength < floorKeyBytes:
		return fmt.Errorf("key length %d below floor %d", c.KeyLength, floorKeyBytes)
	}
	return nil
}

// Argon2 hashes and verifies secrets using argon2id in PHC string format.
// Instances are immutable after construction and safe for concurrent use.
type Argon2 struct {
	cfg Config
}

// NewArgon2 validates the cost configuration and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &Argon2{cfg: cfg}, nil
}

// Hash produces a salted argon2id hash in PHC format
// ($argon2id$v=19$m=...,t=...,p=...$salt$hash). The salt is fresh random
// per call; there is no reversible storage path for the input.
func (a *Argon2) Hash(secret string) (string, error) {
	// Raw string bytes exactly as provided, no Unicode normalization.
	if secret == "" {
		return "", errors.New("secret must not be empty")
	}

	salt := make([]byte, a.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(secret), salt, a.cfg.Time, a.cfg.Memory, a.cfg.Parallelism, a.cfg.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm, argon2.Version,
		a.cfg.Memory, a.cfg.Time, a.cfg.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the hash with the parameters embedded in encodedHash and
// compares in constant time. Returns (false, nil) on a clean mismatch and an
// error only for malformed input.
func (a *Argon2) Verify(secret string, encodedHash string) (bool, error) {
	rec, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(secret), rec.salt, rec.time, rec.memory, rec.parallelism, uint32(len(rec.key)))

	return subtle.ConstantTimeCompare(computed, rec.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker
// parameters than the current configuration and should be rehashed on the
// next successful verification.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	rec, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	weaker := rec.memory < a.cfg.Memory ||
		rec.time < a.cfg.Time ||
		rec.parallelism < a.cfg.Parallelism ||
		uint32(len(rec.key)) != a.cfg.KeyLength

	return weaker, nil
}

// phcRecord is one decoded $argon2id$... string.
type phcRecord struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// decodePHC parses $argon2id$v=19$m=...,t=...,p=...$salt$hash and enforces
// the same floors as Config.check so a downgraded stored hash is rejected
// rather than silently verified.
func decodePHC(encoded string) (*phcRecord, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" {
		return nil, errors.New("malformed PHC string")
	}
	if fields[1] != phcAlgorithm {
		return nil, fmt.Errorf("unsupported algorithm %q", fields[1])
	}

	version, ok := strings.CutPrefix(fields[2], "v=")
	if !ok {
		return nil, errors.New("malformed PHC version field")
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return nil, fmt.Errorf("unsupported argon2 version %q", version)
	}

	var rec phcRecord
	if err := decodeCosts(fields[3], &rec); err != nil {
		return nil, err
	}

	var err error
	if rec.salt, err = base64.StdEncoding.DecodeString(fields[4]); err != nil {
		return nil, errors.New("malformed PHC salt")
	}
	if len(rec.salt) < int(floorSaltBytes) {
		return nil, errors.New("salt below length floor")
	}
	if rec.key, err = base64.StdEncoding.DecodeString(fields[5]); err != nil {
		return nil, errors.New("malformed PHC hash")
	}
	if len(rec.key) == 0 {
		return nil, errors.New("empty PHC hash")
	}

	return &rec, nil
}

// decodeCosts parses the "m=...,t=...,p=..." field. All three keys are
// required, each exactly once, each at or above its floor.
func decodeCosts(field string, rec *phcRecord) error {
	seen := map[string]bool{}
	for _, pair := range strings.Split(field, ",") {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || seen[name] {
			return errors.New("malformed PHC cost field")
		}
		seen[name] = true

		switch name {
		case "m":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(v) < floorMemoryKB {
				return errors.New("memory cost missing or below floor")
			}
			rec.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(v) < floorTime {
				return errors.New("time cost missing or below floor")
			}
			rec.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(raw, 10, 8)
			if err != nil || uint8(v) < floorParallelism {
				return errors.New("parallelism missing or below floor")
			}
			rec.parallelism = uint8(v)
		default:
			return fmt.Errorf("unknown PHC cost key %q", name)
		}
	}
	if len(seen) != 3 {
		return errors.New("incomplete PHC cost field")
	}
	return nil
}
