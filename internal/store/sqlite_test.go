package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vesaa/speedtest2dynamodb/internal/config"
	"github.com/vesaa/speedtest2dynamodb/internal/models"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "speedtest.db"), "", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureTable(ctx))
	require.NoError(t, s.EnsureTable(ctx), "EnsureTable is idempotent")

	later := models.Measurement{ID: "b", Timestamp: 1700003600, PingMS: -1, DownloadBitPerSecond: 40.53, UploadBitPerSecond: 5.88}
	earlier := models.Measurement{ID: "a", Timestamp: 1700000000, PingMS: 10.331, DownloadBitPerSecond: 42498785.28, UploadBitPerSecond: 6165626.88}
	require.NoError(t, s.Put(ctx, later))
	require.NoError(t, s.Put(ctx, earlier))

	records, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.Measurement{earlier, later}, records)
}

func TestSQLitePutDuplicateFails(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureTable(ctx))

	require.NoError(t, s.Put(ctx, testRecord))
	assert.Error(t, s.Put(ctx, testRecord))
}

func TestSQLiteWithWriter(t *testing.T) {
	s := openTestSQLite(t)
	w := NewWriter(s, DefaultRetryPolicy, zerolog.Nop())

	require.NoError(t, w.Write(context.Background(), testRecord))

	records, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Measurement{testRecord}, records)
}

func TestOpenSelectsDriver(t *testing.T) {
	cfg := &config.Config{
		StoreDriver: config.DriverSQLite,
		TableName:   "speedtestresults",
		DBPath:      filepath.Join(t.TempDir(), "speedtest.db"),
	}
	s, err := Open(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	assert.IsType(t, &SQLite{}, s)

	_, err = Open(context.Background(), &config.Config{StoreDriver: "mysql"}, zerolog.Nop())
	assert.True(t, errors.Is(err, ErrUnknownDriver))
}
