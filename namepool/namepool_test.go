package namepool

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/cardinalsearch/cardinal/cancel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPool() *Pool {
	p := New()
	bases := []string{
		"alpha", "beta", "gamma", "delta", "main", "lib", "config", "readme",
		"components", "segment", "node", "slab", "icon", "walk", "cancel", "pool",
	}
	for _, base := range bases {
		p.Push(base)
		p.Push(fmt.Sprintf("%s_v1", base))
		p.Push(fmt.Sprintf("%s_test", base))
		p.Push(fmt.Sprintf("pre_%s_post", base))
		p.Push(fmt.Sprintf("%s123", base))
		p.Push(fmt.Sprintf("%s-dash", base))
	}
	return p
}

func TestPushIsContentAddressed(t *testing.T) {
	p := New()
	h1 := p.Push("foo")
	h2 := p.Push("foo")
	assert.Equal(t, h1, h2)
	assert.Equal(t, "foo", p.Deref(h1))
}

func TestLenIsMonotoneNonDecreasing(t *testing.T) {
	p := New()
	prev := p.Len()
	for _, s := range []string{"a", "bb", "ccc", "a", "dddd"} {
		p.Push(s)
		cur := p.Len()
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestSubstrSearchCompleteness(t *testing.T) {
	p := buildPool()
	token := cancel.Noop()
	for _, needle := range []string{"alpha", "main", "lib", "icon", "walk", "cancel"} {
		handles, ok := p.SearchSubstr(needle, false, token)
		require.True(t, ok)
		assert.NotEmpty(t, handles, "expected matches for %s", needle)
	}
}

func TestPrefixSearch(t *testing.T) {
	p := buildPool()
	token := cancel.Noop()
	handles, ok := p.SearchPrefix("alpha", false, token)
	require.True(t, ok)
	require.NotEmpty(t, handles)
	for _, h := range handles {
		assert.Contains(t, p.Deref(h), "alpha")
	}
}

func TestSuffixSearch(t *testing.T) {
	p := buildPool()
	token := cancel.Noop()
	handles, ok := p.SearchSuffix("dash", false, token)
	require.True(t, ok)
	for _, h := range handles {
		assert.Regexp(t, "dash$", p.Deref(h))
	}
}

func TestExactSearchIncludesBase(t *testing.T) {
	p := buildPool()
	token := cancel.Noop()
	handles, ok := p.SearchExact("alpha", false, token)
	require.True(t, ok)
	require.Len(t, handles, 1)
	assert.Equal(t, "alpha", p.Deref(handles[0]))
}

func TestRegexSearch(t *testing.T) {
	p := buildPool()
	token := cancel.Noop()
	re := regexp.MustCompile(`^[a-z]+_v1$`)
	handles, ok := p.SearchRegex(re, token)
	require.True(t, ok)
	assert.NotEmpty(t, handles)
}

func TestCaseInsensitiveSearch(t *testing.T) {
	p := New()
	p.Push("README")
	token := cancel.Noop()
	handles, ok := p.SearchExact("readme", true, token)
	require.True(t, ok)
	require.Len(t, handles, 1)
}

func TestCancellationStopsScanAndReturnsFalse(t *testing.T) {
	p := buildPool()
	t1 := cancel.New()
	cancel.New() // cancels t1
	_, ok := p.SearchSubstr("alpha", false, t1)
	assert.False(t, ok)
}
