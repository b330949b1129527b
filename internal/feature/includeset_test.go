package feature

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testRoot = "/repo"

func TestIncludeSetIntervalAlgebra(t *testing.T) {
	t.Parallel()

	path := "/repo/f.py"

	t.Run("overlapping ranges stay separate", func(t *testing.T) {
		t.Parallel()
		s := NewIncludeSet(testRoot)
		require.True(t, s.AddInterval(path, Span{Start: 0, End: 5}))
		require.True(t, s.AddInterval(path, Span{Start: 0, End: 6}))
		require.Equal(t, []Span{{0, 5}, {0, 6}}, s.Intervals(path))
		require.Equal(t, 1, s.Len())
	})

	t.Run("duplicate range is deduplicated", func(t *testing.T) {
		t.Parallel()
		s := NewIncludeSet(testRoot)
		require.True(t, s.AddInterval(path, Span{Start: 0, End: 5}))
		require.False(t, s.AddInterval(path, Span{Start: 0, End: 5}))
		require.Equal(t, []Span{{0, 5}}, s.Intervals(path))
	})

	t.Run("excluding an unpinned range is a no-op", func(t *testing.T) {
		t.Parallel()
		s := NewIncludeSet(testRoot)
		s.AddInterval(path, Span{Start: 0, End: 5})
		require.False(t, s.RemoveInterval(path, Span{Start: 3, End: 10}))
		require.Equal(t, []Span{{0, 5}}, s.Intervals(path))
	})

	t.Run("exact exclude removes only that range", func(t *testing.T) {
		t.Parallel()
		s := NewIncludeSet(testRoot)
		s.AddInterval(path, Span{Start: 0, End: 5})
		s.AddInterval(path, Span{Start: 6, End: 10})
		require.True(t, s.RemoveInterval(path, Span{Start: 0, End: 5}))
		require.Equal(t, []Span{{6, 10}}, s.Intervals(path))
		require.True(t, s.RemoveInterval(path, Span{Start: 6, End: 10}))
		require.False(t, s.Has(path))
	})
}

func TestIncludeSetWholeFile(t *testing.T) {
	t.Parallel()

	s := NewIncludeSet(testRoot)
	path := "/repo/pkg/a.go"

	require.True(t, s.AddInterval(path, Span{Start: 1, End: 3}))
	require.True(t, s.AddFile(path, FullCode))
	require.Empty(t, s.Intervals(path))
	require.False(t, s.AddFile(path, FullCode))
	require.False(t, s.AddInterval(path, Span{Start: 1, End: 3}))

	fs := s.Features()
	require.Len(t, fs, 1)
	require.Equal(t, "pkg/a.go", fs[0].RelPath)
	require.True(t, fs[0].UserIncluded)
	require.Equal(t, FullCode, fs[0].Level)

	require.True(t, s.Remove(path))
	require.False(t, s.Remove(path))
	require.Zero(t, s.Len())
}

func TestIncludeSetIdentityIsSorted(t *testing.T) {
	t.Parallel()

	s := NewIncludeSet(testRoot)
	s.AddFile("/repo/b.go", FullCode)
	s.AddInterval("/repo/a.go", Span{Start: 4, End: 8})
	s.AddInterval("/repo/a.go", Span{Start: 0, End: 2})

	require.Equal(t, []string{
		"/repo/a.go:0-2@interval",
		"/repo/a.go:4-8@interval",
		"/repo/b.go@full_code",
	}, s.Identity())
}
