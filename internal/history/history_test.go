package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	attempts := []*Attempt{
		{Session: "s1", Key: "ids/a", Name: "Add", Attempt: 1, Outcome: OutcomeCompileError,
			Message: "undefined: c", Source: "bad", Agent: "openai", DurationMs: 12, CreatedAt: base},
		{Session: "s1", Key: "ids/a", Name: "Add", Attempt: 2, Outcome: OutcomeSuccess,
			Source: "good", Agent: "openai", CreatedAt: base.Add(time.Second)},
		{Session: "s2", Key: "structure/main.go/Mul", Name: "Mul", Attempt: 1, Outcome: OutcomeSuccess,
			CreatedAt: base.Add(2 * time.Second)},
	}
	for _, a := range attempts {
		require.NoError(t, s.Record(ctx, a))
		assert.NotEmpty(t, a.ID)
	}

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Mul", all[0].Name, "newest first")

	byKey, err := s.List(ctx, Filter{Key: "ids/a"})
	require.NoError(t, err)
	want := []Attempt{*attempts[1], *attempts[0]}
	if diff := cmp.Diff(want, byKey, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("attempts mismatch (-want +got):\n%s", diff)
	}

	limited, err := s.List(ctx, Filter{Session: "s1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, 2, limited[0].Attempt)
}

func TestRecordFillsDefaults(t *testing.T) {
	s := openTemp(t)
	a := &Attempt{Session: "s", Key: "ids/x", Attempt: 1, Outcome: OutcomeRejected}
	require.NoError(t, s.Record(context.Background(), a))
	assert.Len(t, a.ID, 36)
	assert.WithinDuration(t, time.Now(), a.CreatedAt, time.Minute)
}

func TestPrune(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Record(ctx, &Attempt{Session: "s", Key: "ids/old", Attempt: 1,
		Outcome: OutcomeSuccess, CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, s.Record(ctx, &Attempt{Session: "s", Key: "ids/new", Attempt: 1,
		Outcome: OutcomeSuccess, CreatedAt: now}))

	n, err := s.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	left, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "ids/new", left[0].Key)
}

func TestReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), &Attempt{Session: "s", Key: "ids/k", Attempt: 1, Outcome: OutcomeSuccess}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	rows, err := s.List(context.Background(), Filter{Key: "ids/k"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, path, s.Path())
}
