package sticky

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

const testBotID = "bot-1"

// fakeMessenger is an in-memory channel: live holds every message that
// currently exists, keyed by id.
type fakeMessenger struct {
	mu sync.Mutex

	caps      Capabilities
	capsErr   error
	sendErr   error
	deleteErr error
	users     map[string]Author

	nextID  int
	live    map[string]Payload
	sent    []Payload
	deleted []string
	calls   int
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		caps:  CapView | CapSend | CapEmbed,
		users: map[string]Author{},
		live:  map[string]Payload{},
	}
}

func (f *fakeMessenger) Send(_ context.Context, channelID string, p Payload) (MessageHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.sendErr != nil {
		return MessageHandle{}, f.sendErr
	}
	f.nextID++
	id := fmt.Sprintf("sent-%d", f.nextID)
	f.live[id] = p
	f.sent = append(f.sent, p)
	return MessageHandle{ChannelID: channelID, ID: id}, nil
}

func (f *fakeMessenger) Fetch(_ context.Context, _, messageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	_, ok := f.live[messageID]
	return ok, nil
}

func (f *fakeMessenger) Delete(_ context.Context, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.deleted = append(f.deleted, messageID)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.live[messageID]; !ok {
		return ErrMessageGone
	}
	delete(f.live, messageID)
	return nil
}

func (f *fakeMessenger) Permissions(context.Context, string) (Capabilities, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.caps, f.capsErr
}

func (f *fakeMessenger) ResolveUser(_ context.Context, userID string) (Author, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.users[userID]
	if !ok {
		return Author{}, errors.New("unknown user")
	}
	return a, nil
}

func (f *fakeMessenger) BotUserID() string { return testBotID }

func (f *fakeMessenger) liveIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.live))
	for id := range f.live {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakeMessenger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeMessenger) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// memoryStore is a Store backed by a map, with injectable failures.
type memoryStore struct {
	mu sync.Mutex

	rows      map[string]Record
	upsertErr error
	deleteErr error
	updateErr error
	loadErr   error
	writes    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: map[string]Record{}}
}

func (m *memoryStore) Upsert(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.rows[r.ChannelID] = r.clone()
	return nil
}

func (m *memoryStore) DeleteByChannel(_ context.Context, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.rows, channelID)
	return nil
}

func (m *memoryStore) LoadAll(context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]Record, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r.clone())
	}
	return out, nil
}

func (m *memoryStore) UpdateLastMessageID(_ context.Context, channelID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.updateErr != nil {
		return m.updateErr
	}
	r, ok := m.rows[channelID]
	if !ok {
		return errors.New("no row")
	}
	r.LastMessageID = messageID
	m.rows[channelID] = r
	return nil
}

func (m *memoryStore) row(channelID string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[channelID]
	return r, ok
}

func (m *memoryStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
