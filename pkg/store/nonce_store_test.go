package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNonceStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nonces")

	s, err := OpenNonceStore(dir)
	require.NoError(t, err)

	last := int64(1756100000123)
	recent := []int64{last - 2, last - 1, last}
	require.NoError(t, s.Save(last, recent))
	require.NoError(t, s.Close())

	// reopen: state survives the restart
	s, err = OpenNonceStore(dir)
	require.NoError(t, err)
	defer s.Close()

	gotLast, gotRecent, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, last, gotLast)
	require.Equal(t, recent, gotRecent, "insertion order preserved")
}

func TestNonceStoreFreshIsEmpty(t *testing.T) {
	s, err := OpenNonceStore(filepath.Join(t.TempDir(), "nonces"))
	require.NoError(t, err)
	defer s.Close()

	last, recent, err := s.Load()
	require.NoError(t, err)
	require.Zero(t, last)
	require.Empty(t, recent)
}

func TestNonceStoreOverwrite(t *testing.T) {
	s, err := OpenNonceStore(filepath.Join(t.TempDir(), "nonces"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(100, []int64{100}))
	require.NoError(t, s.Save(200, []int64{100, 200}))

	last, recent, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, int64(200), last)
	require.Equal(t, []int64{100, 200}, recent)
}
