package tokens

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morozRed/codescape/internal/entity"
	"github.com/morozRed/codescape/internal/languages"
)

func TestFirstAccessReturnsEmptySet(t *testing.T) {
	index := NewIndex()

	set := index.Get("foo")
	require.NotNil(t, set)
	assert.Equal(t, 0, set.Len())

	set.Add("R")
	again := index.Get("foo")
	assert.Same(t, set, again)
	assert.Equal(t, []NodeID{"R"}, again.IDs())
}

func TestPeekDoesNotCreate(t *testing.T) {
	index := NewIndex()
	_, ok := index.Peek("bar")
	assert.False(t, ok)
	assert.Equal(t, 0, index.Len())

	index.Get("bar")
	_, ok = index.Peek("bar")
	assert.True(t, ok)
	assert.Equal(t, []string{"bar"}, index.Tokens())

	index.Remove("bar")
	assert.Equal(t, 0, index.Len())
}

func TestConcurrentFirstAccessSharesOneSet(t *testing.T) {
	index := NewIndex()
	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			index.Get("shared").Add(NodeID(rune('a' + i)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, workers, index.Get("shared").Len())
}

func TestRegisterAndUnregisterEntity(t *testing.T) {
	e := entity.New("a.x", entity.SourceFile, func() (entity.Content, error) {
		return entity.Content{Tokens: []languages.Token{
			{Text: "foo", Line: 0, Column: 0},
			{Text: "bar", Line: 0, Column: 4},
			{Text: "foo", Line: 1, Column: 2},
		}}, nil
	})

	index := NewIndex()
	added, err := Register(index, e)
	require.NoError(t, err)
	assert.Equal(t, 3, added)
	assert.Equal(t, 2, index.Get("foo").Len())
	assert.True(t, index.Get("bar").Contains(GlyphID(e, 0, 4)))

	require.NoError(t, Unregister(index, e))
	assert.Equal(t, 0, index.Get("foo").Len())
	assert.Equal(t, 0, index.Get("bar").Len())
}

func TestNodeSetAddRemove(t *testing.T) {
	set := newNodeSet()
	assert.True(t, set.Add("x"))
	assert.False(t, set.Add("x"))
	assert.True(t, set.Contains("x"))
	assert.True(t, set.Remove("x"))
	assert.False(t, set.Remove("x"))
	assert.Equal(t, 0, set.Len())
}
