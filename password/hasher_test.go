package password

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t *testing.T, pool *Pool) (*Hasher, *Bcrypt) {
	t.Helper()
	argon, err := NewArgon2(fastConfig())
	require.NoError(t, err)
	legacy, err := NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)
	return NewHasher(pool, argon, legacy), legacy
}

func TestHasherVerifiesLegacyBcryptDigest(t *testing.T) {
	h, legacy := newTestHasher(t, NewPool(2))
	ctx := context.Background()

	digest, err := legacy.Hash("imported-password")
	require.NoError(t, err)

	ok, err := h.Verify(ctx, "imported-password", digest)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(ctx, "other-password", digest)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, h.NeedsUpgrade(digest), "bcrypt digest should be upgraded to argon2id")
}

func TestHasherHashesWithPrimaryScheme(t *testing.T) {
	h, _ := newTestHasher(t, nil)
	ctx := context.Background()

	digest, err := h.Hash(ctx, "fresh-password")
	require.NoError(t, err)
	assert.Equal(t, "argon2id", h.Primary())
	assert.False(t, h.NeedsUpgrade(digest))

	ok, err := h.Verify(ctx, "fresh-password", digest)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasherRejectsUnknownDigest(t *testing.T) {
	h, _ := newTestHasher(t, nil)

	_, err := h.Verify(context.Background(), "pw", "$pbkdf2$whatever")
	assert.ErrorIs(t, err, ErrUnknownDigest)
	assert.False(t, h.NeedsUpgrade("$pbkdf2$whatever"))
}

func TestBcryptCostBoundsAndUpgrade(t *testing.T) {
	_, err := NewBcrypt(bcrypt.MaxCost + 1)
	assert.Error(t, err)

	low, err := NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)
	high, err := NewBcrypt(bcrypt.MinCost + 1)
	require.NoError(t, err)

	digest, err := low.Hash("cost-check")
	require.NoError(t, err)

	upgrade, err := high.NeedsUpgrade(digest)
	require.NoError(t, err)
	assert.True(t, upgrade)

	_, err = low.Hash(string(make([]byte, 73)))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(2)
	require.Equal(t, 2, pool.Size())

	var (
		mu      sync.Mutex
		running int
		peak    int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Do(context.Background(), func() {
				mu.Lock()
				running++
				if running > peak {
					peak = running
				}
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, 2)
	assert.GreaterOrEqual(t, peak, 1)
}

func TestPoolHonorsContextWhileWaiting(t *testing.T) {
	pool := NewPool(1)
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = pool.Do(context.Background(), func() {
			close(started)
			<-release
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ran := false
	err := pool.Do(ctx, func() { ran = true })
	close(release)

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, ran)
}
