package application

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidKeyHash         = errors.New("invalid station key hash format")
	ErrIncompatibleKeyVersion = errors.New("incompatible station key hash version")
)

type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// HashStationKey derives the stored form of a station key.
func HashStationKey(key string, params Argon2idParams) (string, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(key), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	// Format is $argon2id$v=19$m=...,t=...,p=...$salt$hash
	format := "$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s"
	return fmt.Sprintf(format, argon2.Version, params.Memory, params.Iterations, params.Parallelism, b64Salt, b64Hash), nil
}

// VerifyStationKey compares key against a hash produced by HashStationKey.
func VerifyStationKey(hashedKey, key string) error {
	parts := strings.Split(hashedKey, "$")
	if len(parts) != 6 {
		return ErrInvalidKeyHash
	}

	if parts[1] != "argon2id" {
		return ErrInvalidKeyHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return err
	}
	if version != argon2.Version {
		return ErrIncompatibleKeyVersion
	}

	var params Argon2idParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return err
	}

	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return err
	}
	params.KeyLength = uint32(len(decodedHash))

	comparisonHash := argon2.IDKey([]byte(key), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	if subtle.ConstantTimeCompare(decodedHash, comparisonHash) == 1 {
		return nil
	}

	return ErrUnauthorized
}

// StationCredential is the configured secret of one scan station.
type StationCredential struct {
	Name    string
	KeyHash string
}

// StationAuthenticator verifies scan station keys.
type StationAuthenticator struct {
	stations map[string]StationCredential
	logger   *slog.Logger
}

// NewStationAuthenticator constructs an authenticator over the configured stations.
func NewStationAuthenticator(stations map[string]StationCredential, logger *slog.Logger) *StationAuthenticator {
	copied := make(map[string]StationCredential, len(stations))
	for id, cred := range stations {
		copied[id] = cred
	}
	return &StationAuthenticator{stations: copied, logger: defaultLogger(logger)}
}

// Authenticate resolves the station for id when key matches its hash.
func (a *StationAuthenticator) Authenticate(ctx context.Context, id, key string) (station Station, err error) {
	if a == nil {
		err = fmt.Errorf("StationAuthenticator is nil")
		return
	}

	logger := serviceLogger(ctx, a.logger, "StationAuthenticator", "Authenticate", "station_id", id)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "station authentication failed", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	cred, ok := a.stations[id]
	if !ok || id == "" || key == "" {
		err = ErrUnauthorized
		return
	}
	if verifyErr := VerifyStationKey(cred.KeyHash, key); verifyErr != nil {
		if errors.Is(verifyErr, ErrUnauthorized) {
			err = ErrUnauthorized
			return
		}
		err = fmt.Errorf("%w: %v", ErrUnauthorized, verifyErr)
		return
	}

	name := cred.Name
	if name == "" {
		name = id
	}
	station = Station{ID: id, Name: name}
	return
}
