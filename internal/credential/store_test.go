package credential

import (
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestFileStoreMissingFileMeansNoCredential(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "credentials.json"))

	token, err := store.Get()
	require.NoError(t, err)
	require.Empty(t, token)
}

func TestFileStoreSetGetClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store := NewFileStore(path)

	require.NoError(t, store.Set("tok-1"))
	token, err := store.Get()
	require.NoError(t, err)
	require.Equal(t, "tok-1", token)

	// A second store on the same path sees the persisted token.
	reopened := NewFileStore(path)
	token, err = reopened.Get()
	require.NoError(t, err)
	require.Equal(t, "tok-1", token)

	require.NoError(t, store.Clear())
	token, err = reopened.Get()
	require.NoError(t, err)
	require.Empty(t, token)

	require.NoError(t, store.Clear(), "clearing twice is a no-op")
}

func TestFileStoreIsPrivate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, NewFileStore(path).Set("secret"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStoreSetEmptyClears(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewFileStore(path)
	require.NoError(t, store.Set("tok"))

	require.NoError(t, store.Set("   "))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o600))

	_, err := NewFileStore(path).Get()
	require.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(" tok ")
	token, _ := store.Get()
	require.Equal(t, "tok", token)

	require.NoError(t, store.Clear())
	token, _ = store.Get()
	require.Empty(t, token)

	require.NoError(t, store.Set("next"))
	token, _ = store.Get()
	require.Equal(t, "next", token)
}

func TestWatcherReportsCredentialChanges(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "credentials.json")
	var changes atomic.Int32
	w, err := Watch(path, 20*time.Millisecond, func() { changes.Add(1) })
	require.NoError(t, err)
	defer w.Close()

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "settings.json"), []byte("{}"), 0o644))
	time.Sleep(100 * time.Millisecond)
	require.Zero(t, changes.Load())

	require.NoError(t, NewFileStore(path).Set("from-other-instance"))
	require.Eventually(t, func() bool { return changes.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "close is idempotent")
}
