package feature

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSpan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Span
		wantErr bool
	}{
		{in: "0-5", want: Span{Start: 0, End: 5}},
		{in: " 10 - 12 ", want: Span{Start: 10, End: 12}},
		{in: "5-5", wantErr: true},
		{in: "6-2", wantErr: true},
		{in: "x-2", wantErr: true},
		{in: "12", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSpan(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSpanRelations(t *testing.T) {
	t.Parallel()

	a := Span{Start: 0, End: 5}
	require.True(t, a.Overlaps(Span{Start: 4, End: 9}))
	require.False(t, a.Overlaps(Span{Start: 5, End: 9}))
	require.True(t, a.Covers(Span{Start: 1, End: 5}))
	require.False(t, a.Covers(Span{Start: 1, End: 6}))
	require.True(t, a.Contains(4))
	require.False(t, a.Contains(5))
	require.Equal(t, Span{Start: 2, End: 3}, Span{Start: 2, End: 8}.Clamp(3))
	require.Equal(t, "0-5", a.String())
}

func TestSplitAtKeepsPinnedRangesWhole(t *testing.T) {
	t.Parallel()

	whole := Span{Start: 0, End: 20}

	got := SplitAt(whole, []int{0, 5, 10, 15}, nil)
	require.Equal(t, []Span{{0, 5}, {5, 10}, {10, 15}, {15, 20}}, got)

	got = SplitAt(whole, []int{5, 10, 15}, []Span{{Start: 8, End: 12}})
	require.Equal(t, []Span{{0, 5}, {5, 8}, {8, 12}, {12, 15}, {15, 20}}, got)

	got = SplitAt(whole, []int{5, 10}, []Span{{Start: 0, End: 5}, {Start: 0, End: 6}})
	require.Equal(t, []Span{{0, 6}, {6, 10}, {10, 20}}, got)
}

func TestBaselineLevels(t *testing.T) {
	t.Parallel()

	require.Equal(t, []Level{SymbolMapFull, SymbolMap, FileName}, BaselineLevels(true))
	require.Equal(t, []Level{FileName}, BaselineLevels(false))
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	l, err := ParseLevel("Symbol-Map-Full")
	require.NoError(t, err)
	require.Equal(t, SymbolMapFull, l)

	_, err = ParseLevel("everything")
	require.Error(t, err)
}
