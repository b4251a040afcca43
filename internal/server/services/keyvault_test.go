package services

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/sealchat/internal/common"
	"github.com/dmitrijs2005/sealchat/internal/logging"
	"github.com/dmitrijs2005/sealchat/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyVault_EnsureKeyPair_GeneratesOnce(t *testing.T) {
	calls := stubKeyGeneration(t)
	store := newFakeStore()
	kv := NewKeyVaultService(nil, store, logging.Nop{})
	ctx := context.Background()

	first, err := kv.EnsureKeyPair(ctx, 7)
	require.NoError(t, err)
	require.True(t, first.Complete())

	second, err := kv.EnsureKeyPair(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, 1, *calls)
	assert.Equal(t, first, second)
}

func TestKeyVault_EnsureKeyPair_CompletesPartialPair(t *testing.T) {
	calls := stubKeyGeneration(t)
	store := newFakeStore()
	store.keyPairs[3] = &models.KeyPair{UserID: 3, PublicKey: "only-public"}
	kv := NewKeyVaultService(nil, store, logging.Nop{})

	kp, err := kv.EnsureKeyPair(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
	assert.True(t, kp.Complete())
	assert.NotEqual(t, "only-public", kp.PublicKey)
}

func TestKeyVault_EnsureKeyPair_Errors(t *testing.T) {
	stubKeyGeneration(t)
	store := newFakeStore()
	store.keyPairsErr = errors.New("db down")
	kv := NewKeyVaultService(nil, store, logging.Nop{})

	_, err := kv.EnsureKeyPair(context.Background(), 1)
	require.Error(t, err)

	store.keyPairsErr = nil
	generateKeyPair = func() (string, string, error) { return "", "", errors.New("no entropy") }
	_, err = kv.EnsureKeyPair(context.Background(), 1)
	require.ErrorContains(t, err, "no entropy")
}

func TestKeyVault_PublicAndPrivateKey(t *testing.T) {
	store := newFakeStore()
	store.keyPairs[1] = &models.KeyPair{UserID: 1, PublicKey: "pub", PrivateKey: "priv"}
	store.keyPairs[2] = &models.KeyPair{UserID: 2}
	kv := NewKeyVaultService(nil, store, logging.Nop{})
	ctx := context.Background()

	pem, ok, err := kv.PublicKey(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "pub", pem)

	for _, id := range []int64{2, 99} {
		_, ok, err = kv.PublicKey(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok, "user %d", id)

		_, err = kv.PrivateKey(ctx, id)
		assert.ErrorIs(t, err, common.ErrNoPublicKey)
	}

	priv, err := kv.PrivateKey(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "priv", priv)

	store.keyPairsErr = errors.New("db down")
	_, ok, err = kv.PublicKey(ctx, 1)
	assert.Error(t, err)
	assert.False(t, ok)
}
