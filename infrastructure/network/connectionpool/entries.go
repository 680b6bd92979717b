package connectionpool

import (
	"github.com/kaspanet/p2pwire/infrastructure/network/ionet"
)

// entry is a verified connection owned by the pool.
type entry struct {
	node        ionet.Node
	key         string
	socket      ionet.PacketSocket
	io          *ionet.BufferedPacketIo
	isAvailable bool
}

// entryList is an ordered collection of entries with a round robin cursor.
// It is not safe for concurrent use.
type entryList struct {
	entries []*entry
	cursor  int
}

func (list *entryList) size() int {
	return len(list.entries)
}

func (list *entryList) numAvailable() int {
	count := 0
	for _, entry := range list.entries {
		if entry.isAvailable {
			count++
		}
	}
	return count
}

func (list *entryList) add(entry *entry) {
	list.entries = append(list.entries, entry)
}

func (list *entryList) indexOf(entry *entry) int {
	for i, candidate := range list.entries {
		if candidate == entry {
			return i
		}
	}
	return -1
}

func (list *entryList) findByKey(key string) *entry {
	for _, entry := range list.entries {
		if entry.key == key {
			return entry
		}
	}
	return nil
}

// remove removes entry, keeping the cursor on the entry that would have been
// picked next.
func (list *entryList) remove(entry *entry) bool {
	index := list.indexOf(entry)
	if index == -1 {
		return false
	}
	copy(list.entries[index:], list.entries[index+1:])
	list.entries[len(list.entries)-1] = nil
	list.entries = list.entries[:len(list.entries)-1]

	if index < list.cursor {
		list.cursor--
	}
	if list.cursor >= len(list.entries) {
		list.cursor = 0
	}
	return true
}

// pickNextAvailable marks the next available entry after the cursor as
// checked out and returns it, or nil if all entries are checked out.
func (list *entryList) pickNextAvailable() *entry {
	numEntries := len(list.entries)
	for i := 0; i < numEntries; i++ {
		index := (list.cursor + i) % numEntries
		entry := list.entries[index]
		if !entry.isAvailable {
			continue
		}
		entry.isAvailable = false
		list.cursor = (index + 1) % numEntries
		return entry
	}
	return nil
}

func (list *entryList) available() []*entry {
	var available []*entry
	for _, entry := range list.entries {
		if entry.isAvailable {
			available = append(available, entry)
		}
	}
	return available
}

func (list *entryList) clear() []*entry {
	entries := list.entries
	list.entries = nil
	list.cursor = 0
	return entries
}
