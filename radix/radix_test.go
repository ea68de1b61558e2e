package radix_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/subsystem-go/radix"
)

func Test_Tree_InsertAndLookup(t *testing.T) {
	// arrange
	tree := radix.New[int]()
	keys := []string{"hello", "help", "helm", "he", "math/plus", "math/minus", "math", "h"}

	// act
	for i, key := range keys {
		require.NoError(t, tree.Insert(key, i), "insert %q", key)
	}

	// assert
	for i, key := range keys {
		value, ok := tree.Lookup(key)
		assert.True(t, ok, "lookup %q", key)
		assert.Equal(t, i, value, "value for %q", key)
	}

	assert.Equal(t, len(keys), tree.Len())
}

func Test_Tree_LookupMissesPrefixesAndExtensions(t *testing.T) {
	// arrange
	tree := radix.New[string]()
	require.NoError(t, tree.Insert("hello", "world"))
	require.NoError(t, tree.Insert("help", "me"))

	// act & assert
	for _, missing := range []string{"", "h", "hel", "hello/", "helloo", "x", "HELLO"} {
		assert.False(t, tree.Has(missing), "%q must not be found", missing)
	}
}

func Test_Tree_RejectsDuplicates(t *testing.T) {
	// arrange
	tree := radix.New[int]()
	require.NoError(t, tree.Insert("math/plus", 1))
	require.NoError(t, tree.Insert("math", 2))

	// act
	errLeaf := tree.Insert("math/plus", 3)
	errSplit := tree.Insert("math", 4)

	// assert
	assert.ErrorIs(t, errLeaf, radix.ErrDuplicateKey)
	assert.ErrorIs(t, errSplit, radix.ErrDuplicateKey)

	value, _ := tree.Lookup("math/plus")
	assert.Equal(t, 1, value, "duplicates must not overwrite")
}

func Test_Tree_InsertInnerNodeCreatedBySplit(t *testing.T) {
	// arrange
	tree := radix.New[int]()
	require.NoError(t, tree.Insert("romane", 1))
	require.NoError(t, tree.Insert("romanus", 2))

	// act
	err := tree.Insert("roman", 3)

	// assert
	require.NoError(t, err)
	assert.True(t, tree.Has("roman"))
	assert.True(t, tree.Has("romane"))
	assert.True(t, tree.Has("romanus"))
}

func Test_Tree_EmptyKey(t *testing.T) {
	// arrange
	tree := radix.New[int]()

	// act
	require.NoError(t, tree.Insert("", 1))

	// assert
	value, ok := tree.Lookup("")
	assert.True(t, ok)
	assert.Equal(t, 1, value)
	assert.ErrorIs(t, tree.Insert("", 2), radix.ErrDuplicateKey)
}

func Test_Tree_Keys_AreLexicallyOrdered(t *testing.T) {
	// arrange
	tree := radix.New[struct{}]()
	for _, key := range []string{"b", "abc", "a", "ab", "c/d", "c"} {
		require.NoError(t, tree.Insert(key, struct{}{}))
	}

	// act
	keys := tree.Keys()

	// assert
	assert.Equal(t, []string{"a", "ab", "abc", "b", "c", "c/d"}, keys)
}

func Test_Tree_Walk_StopsEarly(t *testing.T) {
	// arrange
	tree := radix.New[int]()
	for i, key := range []string{"a", "b", "c"} {
		require.NoError(t, tree.Insert(key, i))
	}

	// act
	var visited []string
	tree.Walk(func(key string, _ int) bool {
		visited = append(visited, key)
		return key != "b"
	})

	// assert
	assert.Equal(t, []string{"a", "b"}, visited)
}

func Test_Tree_Freeze_RejectsInserts(t *testing.T) {
	// arrange
	tree := radix.New[int]()
	require.NoError(t, tree.Insert("a", 1))

	// act
	tree.Freeze()

	// assert
	assert.True(t, tree.Frozen())
	assert.ErrorIs(t, tree.Insert("b", 2), radix.ErrFrozen)
	assert.True(t, tree.Has("a"))
}

func Test_Tree_ConcurrentLookupsAfterFreeze(t *testing.T) {
	// arrange
	tree := radix.New[int]()
	for i := 0; i < 200; i++ {
		require.NoError(t, tree.Insert(fmt.Sprintf("route/%d", i), i))
	}
	tree.Freeze()

	// act
	var wg sync.WaitGroup
	errs := make(chan string, 8*200)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("route/%d", i)
				if value, ok := tree.Lookup(key); !ok || value != i {
					errs <- key
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	// assert
	assert.Empty(t, errs, "every lookup should succeed")
}
