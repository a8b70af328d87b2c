package freshness

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckWithNoRecordNeedsRead(t *testing.T) {
	tr := New()
	needsRead, reason := tr.Check("/a.py")
	require.True(t, needsRead)
	require.Equal(t, "must read before modify", reason)
}

func TestUpdateReadThenCheckIsFresh(t *testing.T) {
	mtime := time.Unix(1000, 0)
	clock := func() time.Time { return time.Unix(1001, 0) }
	stat := func(string) (time.Time, error) { return mtime, nil }
	tr := NewWithClock(clock, stat)

	tr.UpdateRead("/a.py")
	needsRead, reason := tr.Check("/a.py")
	require.False(t, needsRead)
	require.Equal(t, "unchanged", reason)
}

func TestExternalEditAfterReadNeedsRead(t *testing.T) {
	readTime := time.Unix(1000, 0)
	laterMtime := time.Unix(2000, 0)
	calls := 0
	clock := func() time.Time { return readTime }
	stat := func(string) (time.Time, error) {
		calls++
		if calls == 1 {
			return readTime, nil
		}
		return laterMtime, nil
	}
	tr := NewWithClock(clock, stat)

	tr.UpdateRead("/a.py")
	needsRead, reason := tr.Check("/a.py")
	require.True(t, needsRead)
	require.Equal(t, "externally modified", reason)
}

func TestAgentEditThenUnmodifiedExternallyIsFresh(t *testing.T) {
	editTime := time.Unix(1000, 0)
	clock := func() time.Time { return editTime }
	stat := func(string) (time.Time, error) { return editTime, nil }
	tr := NewWithClock(clock, stat)

	tr.UpdateAgentEdit("/a.py")
	needsRead, reason := tr.Check("/a.py")
	require.False(t, needsRead)
	require.Equal(t, "agent has latest", reason)
}

func TestAgentEditThenExternalEditNeedsRead(t *testing.T) {
	editTime := time.Unix(1000, 0)
	laterMtime := time.Unix(2000, 0)
	calls := 0
	clock := func() time.Time { return editTime }
	stat := func(string) (time.Time, error) {
		calls++
		if calls == 1 {
			return editTime, nil
		}
		return laterMtime, nil
	}
	tr := NewWithClock(clock, stat)

	tr.UpdateAgentEdit("/a.py")
	needsRead, reason := tr.Check("/a.py")
	require.True(t, needsRead)
	require.Equal(t, "externally modified", reason)
}

func TestMissingFileNeedsRead(t *testing.T) {
	clock := func() time.Time { return time.Unix(1000, 0) }
	stat := func(string) (time.Time, error) { return time.Time{}, errors.New("not found") }
	tr := NewWithClock(clock, stat)

	tr.UpdateRead("/gone.py")
	needsRead, reason := tr.Check("/gone.py")
	require.True(t, needsRead)
	require.Equal(t, "inaccessible", reason)
}

func TestUpdateReadClearsAgentEdit(t *testing.T) {
	clock := func() time.Time { return time.Unix(1000, 0) }
	stat := func(string) (time.Time, error) { return time.Unix(1000, 0), nil }
	tr := NewWithClock(clock, stat)

	tr.UpdateAgentEdit("/a.py")
	tr.UpdateRead("/a.py")

	rec, ok := tr.Record("/a.py")
	require.True(t, ok)
	require.Nil(t, rec.LastAgentEdit)
}
