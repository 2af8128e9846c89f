package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/billing-tracker/internal/model"
	sqliteRepo "github.com/sakif/billing-tracker/internal/repository/sqlite"
)

// fixedNow is the clock used by service tests: 15 March 2025, 10:00 UTC.
var fixedNow = time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)

// newTestStore opens an in-memory sqlite store with the production schema.
func newTestStore(t *testing.T) *sqliteRepo.DB {
	t.Helper()
	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// newTestUser stores a plain user and returns its ID.
func newTestUser(t *testing.T, db *sqliteRepo.DB, username string) string {
	t.Helper()
	u := &model.User{Username: username, PasswordHash: "x", Role: model.RoleUser}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u.ID
}

// fakeStreetCache is an in-memory cache.StreetCache that records invalidations.
// Like the Redis one, an entry is only returned for the version it was written under.
type fakeStreetCache struct {
	entries       map[string]fakeEntry
	generations   map[string]int
	epoch         int
	invalidated   []string
	invalidateAll int
	getErr        error
	versionErr    error
}

type fakeEntry struct {
	version string
	streets []model.StreetSummary
}

func newFakeStreetCache() *fakeStreetCache {
	return &fakeStreetCache{
		entries:     make(map[string]fakeEntry),
		generations: make(map[string]int),
	}
}

func (f *fakeStreetCache) Version(ctx context.Context, userID string) (string, error) {
	if f.versionErr != nil {
		return "", f.versionErr
	}
	return fmt.Sprintf("%d.%d", f.epoch, f.generations[userID]), nil
}

func (f *fakeStreetCache) GetStreets(ctx context.Context, userID, version string) ([]model.StreetSummary, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	e, ok := f.entries[userID]
	if !ok || e.version != version {
		return nil, false, nil
	}
	return e.streets, true, nil
}

func (f *fakeStreetCache) SetStreets(ctx context.Context, userID, version string, streets []model.StreetSummary) error {
	f.entries[userID] = fakeEntry{version: version, streets: streets}
	return nil
}

func (f *fakeStreetCache) Invalidate(ctx context.Context, userID string) error {
	f.generations[userID]++
	f.invalidated = append(f.invalidated, userID)
	return nil
}

func (f *fakeStreetCache) InvalidateAll(ctx context.Context) error {
	f.epoch++
	f.invalidateAll++
	return nil
}
