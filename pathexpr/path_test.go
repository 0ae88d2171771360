package pathexpr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specado/specado/pathexpr"
)

func TestParseEquivalentForms(t *testing.T) {
	p1, err := pathexpr.Parse("a.b.c")
	require.NoError(t, err)

	p2, err := pathexpr.Parse("$.a.b.c")
	require.NoError(t, err)

	assert.Equal(t, p1.Segments(), p2.Segments())
}

func TestParseSegments(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want []pathexpr.Segment
	}{
		{
			name: "member chain",
			expr: "sampling.temperature",
			want: []pathexpr.Segment{
				{Kind: pathexpr.SegmentMember, Member: "sampling"},
				{Kind: pathexpr.SegmentMember, Member: "temperature"},
			},
		},
		{
			name: "index",
			expr: "messages[0].role",
			want: []pathexpr.Segment{
				{Kind: pathexpr.SegmentMember, Member: "messages"},
				{Kind: pathexpr.SegmentIndex, Index: 0},
				{Kind: pathexpr.SegmentMember, Member: "role"},
			},
		},
		{
			name: "negative index",
			expr: "messages[-1]",
			want: []pathexpr.Segment{
				{Kind: pathexpr.SegmentMember, Member: "messages"},
				{Kind: pathexpr.SegmentIndex, Index: -1},
			},
		},
		{
			name: "wildcard",
			expr: "messages[*].content",
			want: []pathexpr.Segment{
				{Kind: pathexpr.SegmentMember, Member: "messages"},
				{Kind: pathexpr.SegmentWildcard},
				{Kind: pathexpr.SegmentMember, Member: "content"},
			},
		},
		{
			name: "recursive descent",
			expr: "a..b",
			want: []pathexpr.Segment{
				{Kind: pathexpr.SegmentMember, Member: "a"},
				{Kind: pathexpr.SegmentRecursive},
				{Kind: pathexpr.SegmentMember, Member: "b"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := pathexpr.Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Segments())
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
		kind pathexpr.ParseErrorKind
	}{
		{"empty", "", pathexpr.ParseErrEmpty},
		{"unclosed bracket", "a[0", pathexpr.ParseErrUnclosedBracket},
		{"invalid index", "a[x]", pathexpr.ParseErrInvalidIndex},
		{"trailing dot", "a.", pathexpr.ParseErrTrailingDot},
		{"empty member after dot", "a..b..", pathexpr.ParseErrTrailingDot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pathexpr.Parse(tt.expr)
			require.Error(t, err)

			var pe *pathexpr.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.kind, pe.Kind)
		})
	}
}

func TestWritableRejectsWildcardAndRecursive(t *testing.T) {
	p, err := pathexpr.Parse("a[*].b")
	require.NoError(t, err)
	assert.False(t, p.Writable())

	p2, err := pathexpr.Parse("a..b")
	require.NoError(t, err)
	assert.False(t, p2.Writable())

	p3, err := pathexpr.Parse("a.b[0]")
	require.NoError(t, err)
	assert.True(t, p3.Writable())
}

func TestParserNeverPanics(t *testing.T) {
	exprs := []string{
		"", ".", "..", "[", "]", "[]", "a[", "a]", "a[[0]]", "$", "$.",
		"a.b.c.d.e.f[0][1][2]", "a[-999999999999999999999]",
	}

	for _, e := range exprs {
		assert.NotPanics(t, func() {
			_, _ = pathexpr.Parse(e)
		})
	}
}
