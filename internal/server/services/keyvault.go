package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sealchat/internal/common"
	"github.com/dmitrijs2005/sealchat/internal/cryptox"
	"github.com/dmitrijs2005/sealchat/internal/logging"
	"github.com/dmitrijs2005/sealchat/internal/server/models"
	"github.com/dmitrijs2005/sealchat/internal/server/repositories/repomanager"
)

// generateKeyPair is a seam for tests; RSA generation is slow.
var generateKeyPair = cryptox.GenerateKeyPair

// KeyVaultService owns the lifecycle of per-user RSA key pairs.
type KeyVaultService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewKeyVaultService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *KeyVaultService {
	return &KeyVaultService{db: db, repomanager: m, logger: logger.With("module", "keyvault")}
}

// EnsureKeyPair makes sure userID has a complete key pair and returns the
// persisted one. An existing complete pair is never replaced; when two
// callers race, both end up with whichever pair was stored first.
func (s *KeyVaultService) EnsureKeyPair(ctx context.Context, userID int64) (*models.KeyPair, error) {
	repo := s.repomanager.KeyPairs(s.db)

	kp, err := repo.Get(ctx, userID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error loading key pair: %w", err)
	}
	if kp.Complete() {
		return kp, nil
	}

	pub, priv, err := generateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("error generating key pair: %w", err)
	}

	stored, err := repo.StoreIfMissing(ctx, &models.KeyPair{UserID: userID, PublicKey: pub, PrivateKey: priv})
	if err != nil {
		return nil, fmt.Errorf("error storing key pair: %w", err)
	}
	if stored {
		s.logger.Info(ctx, "key pair generated", "user_id", userID)
	}

	kp, err = repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error reloading key pair: %w", err)
	}
	return kp, nil
}

// PublicKey returns the user's public key. ok is false when the user has
// no usable key; err is set only when the lookup itself failed.
func (s *KeyVaultService) PublicKey(ctx context.Context, userID int64) (pem string, ok bool, err error) {
	kp, err := s.repomanager.KeyPairs(s.db).Get(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if kp.PublicKey == "" {
		return "", false, nil
	}
	return kp.PublicKey, true, nil
}

// PrivateKey returns the user's private key or common.ErrNoPublicKey when
// the user has no pair.
func (s *KeyVaultService) PrivateKey(ctx context.Context, userID int64) (string, error) {
	kp, err := s.repomanager.KeyPairs(s.db).Get(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrNoPublicKey
		}
		return "", err
	}
	if kp.PrivateKey == "" {
		return "", common.ErrNoPublicKey
	}
	return kp.PrivateKey, nil
}
