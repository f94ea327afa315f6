package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalsearch/cardinal/cache"
	"github.com/cardinalsearch/cardinal/cancel"
	"github.com/cardinalsearch/cardinal/namepool"
)

// buildTestCache assembles a small arena mirroring original_source/
// search-cache/tests/query_matrix_big.rs's fixture tree, without touching
// disk, so the evaluator can be exercised directly against known
// structure/metadata.
func buildTestCache(t *testing.T) (*cache.FileNodes, *cache.NameIndex) {
	t.Helper()
	pool := namepool.New()
	arena := cache.NewFileNodes(pool)

	var index *cache.NameIndex
	less := func(a, b cache.Handle) bool {
		pa, _ := arena.NodePath(a)
		pb, _ := arena.NodePath(b)
		return pa < pb
	}
	index = cache.NewNameIndex(less)

	insert := func(parent cache.Handle, name string, typ cache.NodeFileType, size uint64, mtime uint32) cache.Handle {
		h, err := arena.Insert(parent, name, cache.SomeMetadata(typ, size, mtime, mtime))
		require.NoError(t, err)
		n := arena.Get(h)
		index.AddIndex(n.Name, h)
		return h
	}

	root := insert(cache.NoParent, "root", cache.NodeDir, 0, 1000)
	arena.SetRoot(root)

	insert(root, "README.md", cache.NodeFile, 120, 1000)
	insert(root, "LICENSE", cache.NodeFile, 80, 1000)
	insert(root, "main.rs", cache.NodeFile, 300, 1000)

	src := insert(root, "src", cache.NodeDir, 0, 1000)
	insert(src, "lib.rs", cache.NodeFile, 500, 1000)
	insert(src, "main.rs", cache.NodeFile, 600, 1000)

	components := insert(src, "components", cache.NodeDir, 0, 1000)
	insert(components, "Button.tsx", cache.NodeFile, 700, 1000)
	insert(components, "Input.tsx", cache.NodeFile, 710, 1000)

	assets := insert(root, "assets", cache.NodeDir, 0, 1000)
	insert(assets, "logo.png", cache.NodeFile, 2048, 1000)
	insert(assets, "banner.jpg", cache.NodeFile, 4096, 1000)

	tests := insert(root, "tests", cache.NodeDir, 0, 1000)
	insert(tests, "test_basic.rs", cache.NodeFile, 90, 1000)

	return arena, index
}

func evaluate(t *testing.T, arena *cache.FileNodes, index *cache.NameIndex, q string) []string {
	t.Helper()
	expr, err := Parse(q)
	require.NoError(t, err)
	expr = Optimize(expr)
	ctx := NewEvalContext(arena, index, EvalOptions{})
	handles, ok, err := ctx.Evaluate(expr, cancel.Noop())
	require.NoError(t, err)
	require.True(t, ok)
	paths := make([]string, 0, len(handles))
	for _, h := range handles {
		p, _ := arena.NodePath(h)
		paths = append(paths, p)
	}
	return paths
}

func TestEvaluateWordMatchesSubstring(t *testing.T) {
	arena, index := buildTestCache(t)
	paths := evaluate(t, arena, index, "README")
	assert.Contains(t, paths, "root/README.md")
}

func TestEvaluateWildcardWord(t *testing.T) {
	arena, index := buildTestCache(t)
	paths := evaluate(t, arena, index, "*.rs")
	assert.Contains(t, paths, "root/main.rs")
	assert.Contains(t, paths, "root/src/lib.rs")
	assert.Contains(t, paths, "root/src/main.rs")
	assert.NotContains(t, paths, "root/README.md")
}

func TestEvaluatePhraseRequiresExactMatch(t *testing.T) {
	arena, index := buildTestCache(t)
	paths := evaluate(t, arena, index, `"main.rs"`)
	assert.Contains(t, paths, "root/main.rs")
	assert.Contains(t, paths, "root/src/main.rs")
	assert.NotContains(t, paths, "root/src/lib.rs")
}

func TestEvaluateRegex(t *testing.T) {
	arena, index := buildTestCache(t)
	paths := evaluate(t, arena, index, `regex:.*\.tsx$`)
	assert.Contains(t, paths, "root/src/components/Button.tsx")
	assert.Contains(t, paths, "root/src/components/Input.tsx")
}

func TestEvaluateAndIntersection(t *testing.T) {
	arena, index := buildTestCache(t)
	paths := evaluate(t, arena, index, "src lib")
	assert.Contains(t, paths, "root/src/lib.rs")
	assert.NotContains(t, paths, "root/src/main.rs")
}

func TestEvaluateOrUnion(t *testing.T) {
	arena, index := buildTestCache(t)
	paths := evaluate(t, arena, index, "README | LICENSE")
	assert.Contains(t, paths, "root/README.md")
	assert.Contains(t, paths, "root/LICENSE")
}

func TestEvaluateNotComplement(t *testing.T) {
	arena, index := buildTestCache(t)
	paths := evaluate(t, arena, index, "src ! lib")
	assert.Contains(t, paths, "root/src/main.rs")
	assert.NotContains(t, paths, "root/src/lib.rs")
}

func TestEvaluateFilterFolder(t *testing.T) {
	arena, index := buildTestCache(t)
	paths := evaluate(t, arena, index, "folder:")
	assert.Contains(t, paths, "root/src")
	assert.Contains(t, paths, "root/assets")
	assert.NotContains(t, paths, "root/README.md")
}

func TestEvaluateFilterExtensionList(t *testing.T) {
	arena, index := buildTestCache(t)
	paths := evaluate(t, arena, index, "ext:png;jpg")
	assert.Contains(t, paths, "root/assets/logo.png")
	assert.Contains(t, paths, "root/assets/banner.jpg")
	assert.NotContains(t, paths, "root/README.md")
}

func TestEvaluateFilterSizeComparison(t *testing.T) {
	arena, index := buildTestCache(t)
	paths := evaluate(t, arena, index, "size:>1000")
	assert.Contains(t, paths, "root/assets/logo.png")
	assert.Contains(t, paths, "root/assets/banner.jpg")
	assert.NotContains(t, paths, "root/README.md")
}

func TestEvaluateFilterParent(t *testing.T) {
	arena, index := buildTestCache(t)
	paths := evaluate(t, arena, index, "parent:src")
	assert.Contains(t, paths, "root/src/lib.rs")
	assert.Contains(t, paths, "root/src/main.rs")
	assert.NotContains(t, paths, "root/src/components/Button.tsx")
}

func TestEvaluateFilterInFolder(t *testing.T) {
	arena, index := buildTestCache(t)
	paths := evaluate(t, arena, index, "infolder:src")
	assert.Contains(t, paths, "root/src/lib.rs")
	assert.Contains(t, paths, "root/src/components/Button.tsx")
}

func TestEvaluateCustomFilterMatchesNothing(t *testing.T) {
	arena, index := buildTestCache(t)
	paths := evaluate(t, arena, index, "madeup:foo")
	assert.Empty(t, paths)
}

func TestEvaluateCancellationReturnsNotOk(t *testing.T) {
	arena, index := buildTestCache(t)
	expr, err := Parse("README")
	require.NoError(t, err)
	expr = Optimize(expr)
	ctx := NewEvalContext(arena, index, EvalOptions{})
	token := cancel.New()
	cancel.New() // cancels token
	_, ok, err := ctx.Evaluate(expr, token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateEmptyMatchesEverything(t *testing.T) {
	arena, index := buildTestCache(t)
	paths := evaluate(t, arena, index, "")
	assert.Equal(t, arena.Len(), len(paths))
}
