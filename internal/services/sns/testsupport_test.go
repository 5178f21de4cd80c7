package sns

import (
	"context"
	"sync"

	"github.com/wavalabs/builder/internal/services/sns/storage"
)

// memStore is an in-memory storage.Store for tests.
type memStore struct {
	mu          sync.Mutex
	connections []storage.Connection
	schedule    []storage.ScheduleItem
}

func newMemStore() *memStore { return &memStore{} }

func (m *memStore) SaveConnection(_ context.Context, conn storage.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections = append(m.connections, conn)
	return nil
}

func (m *memStore) ListConnections(context.Context) ([]storage.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.Connection, len(m.connections))
	copy(out, m.connections)
	return out, nil
}

func (m *memStore) GetConnection(_ context.Context, id string) (storage.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conn := range m.connections {
		if conn.ID == id {
			return conn, nil
		}
	}
	return storage.Connection{}, storage.ErrNotFound{Kind: "connection", ID: id}
}

func (m *memStore) DeleteConnection(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, conn := range m.connections {
		if conn.ID == id {
			m.connections = append(m.connections[:i], m.connections[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) UpdateConnectionTokens(_ context.Context, id, accessToken, refreshToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.connections {
		if m.connections[i].ID == id {
			if accessToken != "" {
				m.connections[i].AccessToken = accessToken
			}
			if refreshToken != "" {
				m.connections[i].RefreshToken = refreshToken
			}
			return nil
		}
	}
	return storage.ErrNotFound{Kind: "connection", ID: id}
}

func (m *memStore) AddScheduleItem(_ context.Context, item storage.ScheduleItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedule = append(m.schedule, item)
	return nil
}

func (m *memStore) ListSchedule(_ context.Context, includeResolved bool) ([]storage.ScheduleItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ScheduleItem
	for _, item := range m.schedule {
		if !includeResolved && item.Status != storage.SchedulePending {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (m *memStore) DueScheduleItems(_ context.Context, nowMillis int64) ([]storage.ScheduleItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ScheduleItem
	for _, item := range m.schedule {
		if item.Status == storage.SchedulePending && item.ScheduledAt <= nowMillis {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memStore) MarkSchedulePosted(_ context.Context, id, postID string, postedAtMillis int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.schedule {
		if m.schedule[i].ID == id {
			m.schedule[i].Status = storage.SchedulePosted
			m.schedule[i].PostID = postID
			m.schedule[i].PostedAt = postedAtMillis
			return nil
		}
	}
	return storage.ErrNotFound{Kind: "schedule item", ID: id}
}

func (m *memStore) MarkScheduleFailed(_ context.Context, id, errMsg string, postedAtMillis int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.schedule {
		if m.schedule[i].ID == id {
			m.schedule[i].Status = storage.ScheduleFailed
			m.schedule[i].Error = errMsg
			m.schedule[i].PostedAt = postedAtMillis
			return nil
		}
	}
	return storage.ErrNotFound{Kind: "schedule item", ID: id}
}

func (m *memStore) DeleteScheduleItem(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, item := range m.schedule {
		if item.ID == id {
			m.schedule = append(m.schedule[:i], m.schedule[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) scheduleItem(id string) (storage.ScheduleItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.schedule {
		if item.ID == id {
			return item, true
		}
	}
	return storage.ScheduleItem{}, false
}

// fakeGenerator is a canned TextGenerator.
type fakeGenerator struct {
	text string
	err  error

	lastPrompt      string
	lastTemperature float32
	lastMaxTokens   int32
}

func (f *fakeGenerator) GenerateText(_ context.Context, prompt string, temperature float32, maxTokens int32) (string, error) {
	f.lastPrompt = prompt
	f.lastTemperature = temperature
	f.lastMaxTokens = maxTokens
	return f.text, f.err
}
