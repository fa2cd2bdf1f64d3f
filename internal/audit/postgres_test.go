package audit_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelsoft/pse/internal/audit"
)

// testDSN returns the integration test database DSN from the environment, or
// skips the test if PSE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("PSE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PSE_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *audit.PostgresStore {
	t.Helper()
	ctx := context.Background()
	store, err := audit.NewPostgresStore(ctx, testDSN(t))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestPostgresStore_RecordAndRecentSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	sess := audit.Session{
		ID:             "pg-session-1",
		SchemaName:     "person",
		Accepted:       true,
		Output:         `{"name":"Ada","age":37}`,
		TokensConsumed: 12,
		TokensHealed:   1,
		StartedAt:      now.Add(-time.Second),
		FinishedAt:     now,
		Duration:       time.Second,
	}
	require.NoError(t, store.RecordSession(ctx, sess))

	recent, err := store.RecentSessions(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, recent)
	require.Equal(t, sess.ID, recent[0].ID)
	require.Equal(t, sess.Output, recent[0].Output)
	require.Equal(t, sess.TokensHealed, recent[0].TokensHealed)

	// Re-recording the same ID upserts rather than duplicating.
	sess.Accepted = false
	sess.Output = "overwritten"
	require.NoError(t, store.RecordSession(ctx, sess))
	recent, err = store.RecentSessions(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, "overwritten", recent[0].Output)
}

func TestPostgresStore_RecentSessionsRespectsLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := range 5 {
		require.NoError(t, store.RecordSession(ctx, audit.Session{
			ID:         "pg-limit-" + string(rune('a'+i)),
			Accepted:   true,
			StartedAt:  base.Add(time.Duration(i) * time.Second),
			FinishedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	recent, err := store.RecentSessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
}
