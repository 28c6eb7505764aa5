package accumulator_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cattackle-hq/cattackle-core/internal/accumulator"
)

func TestAddAndGet(t *testing.T) {
	t.Parallel()

	acc := accumulator.New(10, 1000)

	added := acc.Add(42, "hello")
	require.True(t, added)

	added = acc.Add(42, "world")
	require.True(t, added)

	got := acc.Get(42)
	assert.Equal(t, []string{"hello", "world"}, got)
}

func TestAddDropsEmpty(t *testing.T) {
	t.Parallel()

	acc := accumulator.New(10, 1000)

	added := acc.Add(1, "   ")
	assert.False(t, added)
	assert.Equal(t, 0, acc.Count(1))
}

func TestAddTruncatesByRuneCount(t *testing.T) {
	t.Parallel()

	acc := accumulator.New(10, 5)

	added := acc.Add(1, "héllo world")
	require.True(t, added)

	got := acc.Get(1)
	require.Len(t, got, 1)
	assert.Equal(t, 5, len([]rune(got[0])))
}

func TestAddRespectsMaxPerChatBound(t *testing.T) {
	t.Parallel()

	acc := accumulator.New(3, 100)

	for i := range 5 {
		acc.Add(1, fmt.Sprintf("msg-%d", i))
	}

	got := acc.Get(1)
	require.Len(t, got, 3)
	// Oldest messages are evicted first; the most recent 3 survive.
	assert.Equal(t, []string{"msg-2", "msg-3", "msg-4"}, got)
}

func TestAddZeroMaxMessageLengthDropsEverything(t *testing.T) {
	t.Parallel()

	acc := accumulator.New(10, 0)

	added := acc.Add(1, "anything")
	assert.False(t, added)
}

func TestDrainIsAtomicAndClears(t *testing.T) {
	t.Parallel()

	acc := accumulator.New(10, 100)
	acc.Add(7, "a")
	acc.Add(7, "b")

	drained := acc.Drain(7)
	assert.Equal(t, []string{"a", "b"}, drained)
	assert.Equal(t, 0, acc.Count(7))

	// Draining again returns nothing: the first drain already cleared state.
	again := acc.Drain(7)
	assert.Empty(t, again)
}

func TestClearOnlyAffectsOneChat(t *testing.T) {
	t.Parallel()

	acc := accumulator.New(10, 100)
	acc.Add(1, "a")
	acc.Add(2, "b")

	acc.Clear(1)

	assert.Equal(t, 0, acc.Count(1))
	assert.Equal(t, 1, acc.Count(2))
}

func TestTotalChatsAndAllChatIDs(t *testing.T) {
	t.Parallel()

	acc := accumulator.New(10, 100)
	acc.Add(1, "a")
	acc.Add(2, "b")
	acc.Add(3, "c")

	assert.Equal(t, 3, acc.TotalChats())
	assert.ElementsMatch(t, []int64{1, 2, 3}, acc.AllChatIDs())
}

func TestGetReturnsACopyNotALiveView(t *testing.T) {
	t.Parallel()

	acc := accumulator.New(10, 100)
	acc.Add(1, "a")

	got := acc.Get(1)
	got[0] = "mutated"

	assert.Equal(t, []string{"a"}, acc.Get(1))
}

func TestAddTrimsSurroundingWhitespace(t *testing.T) {
	t.Parallel()

	acc := accumulator.New(10, 100)
	acc.Add(1, "  padded  ")

	got := acc.Get(1)
	require.Len(t, got, 1)
	assert.False(t, strings.HasPrefix(got[0], " "))
	assert.False(t, strings.HasSuffix(got[0], " "))
}
