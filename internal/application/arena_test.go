package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/commentsync/internal/domain/model"
)

func arenaThread(handle int, id string) *model.CommentThread {
	return model.NewCommentThread(1, handle, id, "ext", "file:///a.ts", model.LineRange(1))
}

func TestThreadArena_IndicesStayInSync(t *testing.T) {
	a := newThreadArena()

	assert.Empty(t, a.put(arenaThread(1, "x")))
	assert.Empty(t, a.put(arenaThread(2, "y")))

	// Same id under a new handle displaces the old record from both indices.
	displaced := a.put(arenaThread(3, "x"))
	require.Len(t, displaced, 1)
	assert.Equal(t, 1, displaced[0].ThreadHandle())

	_, ok := a.get(1)
	assert.False(t, ok)
	th, ok := a.getByID("x")
	require.True(t, ok)
	assert.Equal(t, 3, th.ThreadHandle())
	assert.Equal(t, 2, a.size())
}

func TestThreadArena_RemoveAndDrain(t *testing.T) {
	a := newThreadArena()
	a.put(arenaThread(5, "e"))
	a.put(arenaThread(2, "b"))

	assert.Nil(t, a.remove(9))
	removed := a.remove(5)
	require.NotNil(t, removed)
	_, ok := a.getByID("e")
	assert.False(t, ok)

	a.put(arenaThread(1, "a"))
	drained := a.drain()
	require.Len(t, drained, 2)
	assert.Equal(t, 1, drained[0].ThreadHandle())
	assert.Equal(t, 2, drained[1].ThreadHandle())
	assert.Equal(t, 0, a.size())
}
