package fieldpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Path
	}{
		{"empty", "", Path{}},
		{"single name", "name", Path{Name("name")}},
		{"dotted names", "user.address.street", Path{Name("user"), Name("address"), Name("street")}},
		{"bracket index", "addresses[0].street", Path{Name("addresses"), Index(0), Name("street")}},
		{"numeric dot segment", "addresses.0.street", Path{Name("addresses"), Index(0), Name("street")}},
		{"trailing index", "tags[12]", Path{Name("tags"), Index(12)}},
		{"chained indexes", "matrix[1][2]", Path{Name("matrix"), Index(1), Index(2)}},
		{"leading index", "[3].x", Path{Index(3), Name("x")}},
		{"doubled dots tolerated", "a..b", Path{Name("a"), Name("b")}},
		{"non-numeric bracket becomes name", "a[foo]", Path{Name("a"), Name("foo")}},
		{"negative index becomes name", "a[-1]", Path{Name("a"), Name("-1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, Parse(tt.in).Equal(tt.want), "Parse(%q) = %v, want %v", tt.in, Parse(tt.in), tt.want)
		})
	}
}

func TestParse_NeverPanics(t *testing.T) {
	for _, in := range []string{"[", "]", "a[", "a]b", "a[1", ".[0]", "...", "[][]", "a[[1]]"} {
		assert.NotPanics(t, func() { _ = Parse(in) }, "input %q", in)
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		name string
		in   Path
		want string
	}{
		{"empty", Path{}, ""},
		{"single name", Path{Name("a")}, "a"},
		{"name then index", Path{Name("a"), Index(1)}, "a[1]"},
		{"full mix", Path{Name("addresses"), Index(0), Name("street")}, "addresses[0].street"},
		{"leading index", Path{Index(0), Name("a")}, "[0].a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.String())
		})
	}
}

func TestRoundTrip(t *testing.T) {
	canonical := []string{
		"",
		"name",
		"user.address.street",
		"addresses[0].street",
		"matrix[1][2]",
		"a[1].b[2].c",
		"[0].a",
	}
	for _, s := range canonical {
		assert.Equal(t, s, Parse(s).String(), "stringify(parse(%q))", s)
	}

	paths := []Path{
		{},
		{Name("a")},
		{Name("a"), Index(1)},
		{Name("addresses"), Index(0), Name("street")},
	}
	for _, p := range paths {
		assert.True(t, Parse(p.String()).Equal(p), "parse(stringify(%v))", p)
	}
}

func TestGet(t *testing.T) {
	root := map[string]any{
		"name": "Ada",
		"addresses": []any{
			map[string]any{"street": "Main St"},
			map[string]any{"street": "Side St"},
		},
		"meta": map[string]any{"nested": map[string]any{"deep": 42}},
		"nil":  nil,
	}

	tests := []struct {
		name   string
		path   string
		want   any
		wantOK bool
	}{
		{"top level", "name", "Ada", true},
		{"indexed", "addresses[1].street", "Side St", true},
		{"deep", "meta.nested.deep", 42, true},
		{"missing key", "missing", nil, false},
		{"missing deep", "meta.missing.deep", nil, false},
		{"index out of range", "addresses[9].street", nil, false},
		{"through nil", "nil.child", nil, false},
		{"through scalar", "name.child", nil, false},
		{"empty path returns root", "", root, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := GetAtPath(root, tt.path)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestGet_TypedContainers(t *testing.T) {
	root := map[string]any{
		"scores": []int{10, 20, 30},
		"labels": map[string]string{"en": "hello"},
	}

	got, ok := GetAtPath(root, "scores[2]")
	require.True(t, ok)
	assert.Equal(t, 30, got)

	got, ok = GetAtPath(root, "labels.en")
	require.True(t, ok)
	assert.Equal(t, "hello", got)
}

func TestSet(t *testing.T) {
	t.Run("set then get", func(t *testing.T) {
		root := map[string]any{}
		SetAtPath(root, "user.name", "Ada")
		got, ok := GetAtPath(root, "user.name")
		require.True(t, ok)
		assert.Equal(t, "Ada", got)
	})

	t.Run("auto-vivifies slice for index segment", func(t *testing.T) {
		root := map[string]any{}
		SetAtPath(root, "addresses[1].street", "Main St")

		addrs, ok := GetAtPath(root, "addresses")
		require.True(t, ok)
		slice, ok := addrs.([]any)
		require.True(t, ok, "expected []any, got %T", addrs)
		assert.Len(t, slice, 2)
		assert.Nil(t, slice[0])

		got, ok := GetAtPath(root, "addresses[1].street")
		require.True(t, ok)
		assert.Equal(t, "Main St", got)
	})

	t.Run("auto-vivifies map for name segment", func(t *testing.T) {
		root := map[string]any{}
		SetAtPath(root, "a.b.c", 1)
		got, ok := GetAtPath(root, "a.b.c")
		require.True(t, ok)
		assert.Equal(t, 1, got)
	})

	t.Run("overwrites scalar intermediate", func(t *testing.T) {
		root := map[string]any{"a": "scalar"}
		SetAtPath(root, "a.b", 2)
		got, ok := GetAtPath(root, "a.b")
		require.True(t, ok)
		assert.Equal(t, 2, got)
	})

	t.Run("empty path is a no-op", func(t *testing.T) {
		root := map[string]any{"keep": true}
		out := SetAtPath(root, "", map[string]any{"replaced": true})
		assert.Equal(t, map[string]any{"keep": true}, out)
	})

	t.Run("grows existing slice", func(t *testing.T) {
		root := map[string]any{"xs": []any{"a"}}
		SetAtPath(root, "xs[3]", "d")
		xs, _ := GetAtPath(root, "xs")
		assert.Len(t, xs.([]any), 4)
	})

	t.Run("negative index skips the write", func(t *testing.T) {
		root := map[string]any{"xs": []any{"a"}}
		Set(root, Path{Name("xs"), Index(-1)}, "x")
		xs, _ := GetAtPath(root, "xs")
		assert.Equal(t, []any{"a"}, xs)
	})
}

func TestSet_Idempotence(t *testing.T) {
	// setValueAtPath(o, path, v); getValueAtPath(o, path) == v for non-empty paths.
	paths := []string{"a", "a.b", "xs[0]", "xs[2].y", "a.b[1].c"}
	for _, p := range paths {
		root := map[string]any{}
		SetAtPath(root, p, "v")
		got, ok := GetAtPath(root, p)
		require.True(t, ok, "path %q", p)
		assert.Equal(t, "v", got, "path %q", p)
	}
}
