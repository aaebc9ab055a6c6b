// Package auth implements the broker's API-key verifier (C2): dev mode,
// master-key mode, and a Postgres-backed store mode.
package auth

import (
	"context"
	"crypto/subtle"

	"go.uber.org/zap"

	"github.com/vucinatim/air-jam/backend/go/internal/logging"
)

// Verifier resolves a host-supplied API key to valid/invalid. It is
// consulted exactly once, at host registration.
type Verifier interface {
	VerifyAPIKey(ctx context.Context, key string) (bool, error)
}

// DevVerifier accepts every key, including the empty string. Selected when
// neither AIR_JAM_MASTER_KEY nor DATABASE_URL is configured.
type DevVerifier struct{}

func NewDevVerifier() *DevVerifier {
	logging.Warn(context.Background(), "auth verifier running in DEV MODE — every API key is accepted")
	return &DevVerifier{}
}

func (*DevVerifier) VerifyAPIKey(ctx context.Context, key string) (bool, error) {
	return true, nil
}

// MasterKeyVerifier accepts exactly one shared secret, compared in constant
// time to avoid leaking timing information about the key.
type MasterKeyVerifier struct {
	key []byte
}

func NewMasterKeyVerifier(key string) *MasterKeyVerifier {
	return &MasterKeyVerifier{key: []byte(key)}
}

func (v *MasterKeyVerifier) VerifyAPIKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	ok := subtle.ConstantTimeCompare(v.key, []byte(key)) == 1
	if !ok {
		logging.Warn(ctx, "master-key verification failed", zap.Int("key_len", len(key)))
	}
	return ok, nil
}
