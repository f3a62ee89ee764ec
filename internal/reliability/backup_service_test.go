package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/treasury/internal/events"
	testingpkg "github.com/aristath/treasury/internal/testing"
)

type memoryObjectStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{objects: make(map[string][]byte)}
}

func (m *memoryObjectStore) Upload(_ context.Context, key string, body io.Reader, _ int64) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryObjectStore) List(_ context.Context, prefix string) ([]Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Object
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, Object{Key: k, SizeBytes: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memoryObjectStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryObjectStore) keys() []string {
	objs, _ := m.List(context.Background(), "")
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.Key)
	}
	return out
}

func readArchive(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	files := make(map[string][]byte)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[hdr.Name] = body
	}
	return files
}

func TestBackupService_CreateAndUploadBackup(t *testing.T) {
	db := testingpkg.NewHistoryDB(t)
	store := newMemoryObjectStore()
	em := events.NewManager(zerolog.Nop())

	svc := NewBackupService(db, store, t.TempDir(), 30, em, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 1, 8, 14, 30, 22, 0, time.UTC) }

	require.NoError(t, svc.Backup(context.Background()))

	const key = "treasury-backup-2026-01-08-143022.tar.gz"
	require.Contains(t, store.objects, key)

	files := readArchive(t, store.objects[key])
	require.Contains(t, files, "history.db")
	require.Contains(t, files, metadataFile)

	var meta BackupMetadata
	require.NoError(t, json.Unmarshal(files[metadataFile], &meta))
	require.Len(t, meta.Databases, 1)
	assert.Equal(t, "history.db", meta.Databases[0].Filename)
	assert.Equal(t, int64(len(files["history.db"])), meta.Databases[0].SizeBytes)
	assert.True(t, strings.HasPrefix(meta.Databases[0].Checksum, "sha256:"))

	recent := em.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, events.BackupCompleted, recent[0].Type)
}

func TestBackupService_UploadFailure(t *testing.T) {
	db := testingpkg.NewHistoryDB(t)
	store := newMemoryObjectStore()
	store.uploadErr = errors.New("access denied")
	em := events.NewManager(zerolog.Nop())

	svc := NewBackupService(db, store, t.TempDir(), 30, em, zerolog.Nop())
	err := svc.Backup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	recent := em.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, events.BackupFailed, recent[0].Type)
}

func TestBackupService_RotateOldBackups(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryObjectStore()
	for _, age := range []int{1, 10, 40, 50, 60} {
		key := backupPrefix + now.AddDate(0, 0, -age).Format(backupTimeLayout) + backupSuffix
		store.objects[key] = []byte("x")
	}
	store.objects["unrelated.txt"] = []byte("x")
	store.objects[backupPrefix+"garbage"+backupSuffix] = []byte("x")

	svc := NewBackupService(nil, store, t.TempDir(), 30, nil, zerolog.Nop())
	svc.now = func() time.Time { return now }

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 5)
	assert.Equal(t, int64(24), backups[0].AgeHours)

	require.NoError(t, svc.RotateOldBackups(context.Background()))

	// Newest three always survive; of the rest only those past retention go
	remaining, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
	assert.Contains(t, store.keys(), "unrelated.txt")
}

func TestBackupService_RotateKeepsMinimum(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemoryObjectStore()
	for _, age := range []int{100, 200, 300} {
		store.objects[backupPrefix+now.AddDate(0, 0, -age).Format(backupTimeLayout)+backupSuffix] = []byte("x")
	}

	svc := NewBackupService(nil, store, t.TempDir(), 30, nil, zerolog.Nop())
	svc.now = func() time.Time { return now }
	require.NoError(t, svc.RotateOldBackups(context.Background()))
	assert.Len(t, store.keys(), 3)

	svc.retentionDays = 0
	require.NoError(t, svc.RotateOldBackups(context.Background()))
	assert.Len(t, store.keys(), 3)
}

func TestDailyMaintenanceJob(t *testing.T) {
	db := testingpkg.NewHistoryDB(t)

	job := NewDailyMaintenanceJob(db, t.TempDir(), zerolog.Nop())
	assert.Equal(t, "daily_maintenance", job.Name())

	job.free = func(string) (uint64, error) { return 20 * 1000 * 1000 * 1000, nil }
	assert.NoError(t, job.Run())

	job.free = func(string) (uint64, error) { return 100 * 1000 * 1000, nil }
	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "100 MB")

	job.free = func(string) (uint64, error) { return 0, errors.New("no such device") }
	assert.Error(t, job.Run())
}
