package sticky

import "sync"

// Cache maps channel id to the live sticky record. It is written only by the
// Engine that owns it.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Record
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]Record)}
}

func (c *Cache) Get(channelID string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[channelID]
	if !ok {
		return Record{}, false
	}
	return r.clone(), true
}

func (c *Cache) Put(r Record) {
	c.mu.Lock()
	c.entries[r.ChannelID] = r.clone()
	c.mu.Unlock()
}

// SetLastMessageID advances the live copy of an existing entry. It reports
// false when the channel has no entry.
func (c *Cache) SetLastMessageID(channelID, messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[channelID]
	if !ok {
		return false
	}
	r.LastMessageID = messageID
	c.entries[channelID] = r
	return true
}

func (c *Cache) Delete(channelID string) {
	c.mu.Lock()
	delete(c.entries, channelID)
	c.mu.Unlock()
}

// Replace swaps the whole content, used when seeding from the store.
func (c *Cache) Replace(records []Record) {
	entries := make(map[string]Record, len(records))
	for _, r := range records {
		entries[r.ChannelID] = r.clone()
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
