package connectionpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newEntryList(keys ...string) (*entryList, []*entry) {
	list := &entryList{}
	entries := make([]*entry, len(keys))
	for i, key := range keys {
		entries[i] = &entry{key: key, isAvailable: true}
		list.add(entries[i])
	}
	return list, entries
}

func TestPickNextAvailableRotates(t *testing.T) {
	list, entries := newEntryList("a", "b", "c")

	require.Same(t, entries[0], list.pickNextAvailable())
	require.Same(t, entries[1], list.pickNextAvailable())
	entries[0].isAvailable = true
	require.Same(t, entries[2], list.pickNextAvailable())
	require.Same(t, entries[0], list.pickNextAvailable())
	require.Nil(t, list.pickNextAvailable())
	require.Equal(t, 0, list.numAvailable())
}

func TestRemoveKeepsCursorOnNextEntry(t *testing.T) {
	list, entries := newEntryList("a", "b", "c", "d")
	list.pickNextAvailable()
	list.pickNextAvailable()
	for _, entry := range entries {
		entry.isAvailable = true
	}

	// the cursor points at c, removing an entry before it keeps it there
	require.True(t, list.remove(entries[0]))
	require.Same(t, entries[2], list.pickNextAvailable())

	// removing the last entry wraps the cursor around
	require.True(t, list.remove(entries[3]))
	require.False(t, list.remove(entries[3]))
	require.Same(t, entries[1], list.pickNextAvailable())
	require.Equal(t, 2, list.size())
	require.Same(t, entries[2], list.findByKey("c"))
	require.Nil(t, list.findByKey("a"))
}

func TestClearEmptiesList(t *testing.T) {
	list, entries := newEntryList("a", "b")
	list.pickNextAvailable()
	require.Equal(t, entries, list.clear())
	require.Equal(t, 0, list.size())
	require.Nil(t, list.pickNextAvailable())
}
