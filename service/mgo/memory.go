package mgo

import (
	"context"
	"sort"
	"sync"
	"time"

	"PPSignal/tools/errs"
	"PPSignal/tools/ids"
)

// MemoryMessageStore is the demo-mode message store.
type MemoryMessageStore struct {
	mu   sync.RWMutex
	byID map[string][]Message // conversation -> messages in insert order
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{byID: make(map[string][]Message)}
}

func (s *MemoryMessageStore) Insert(_ context.Context, m *Message) (string, error) {
	prepare(m)
	s.mu.Lock()
	s.byID[m.ConversationID] = append(s.byID[m.ConversationID], *m)
	s.mu.Unlock()
	return m.ID, nil
}

func (s *MemoryMessageStore) Recent(_ context.Context, conversationID string, limit int) ([]Message, error) {
	limit = clampLimit(limit)
	s.mu.RLock()
	src := s.byID[conversationID]
	all := make([]Message, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		all = append(all, src[i])
	}
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// MemoryFileStore keeps uploads in process memory.
type MemoryFileStore struct {
	mu    sync.RWMutex
	files map[string]memFile
}

type memFile struct {
	info FileInfo
	data []byte
}

func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{files: make(map[string]memFile)}
}

func (s *MemoryFileStore) Put(_ context.Context, name, userID string, data []byte) (FileInfo, error) {
	info := FileInfo{
		ID:         ids.GenerateString(),
		Name:       name,
		Size:       int64(len(data)),
		UploadedBy: userID,
		CreatedAt:  time.Now().UTC(),
	}
	s.mu.Lock()
	s.files[info.ID] = memFile{info: info, data: append([]byte(nil), data...)}
	s.mu.Unlock()
	return info, nil
}

func (s *MemoryFileStore) Get(_ context.Context, id string) (FileInfo, []byte, error) {
	s.mu.RLock()
	f, ok := s.files[id]
	s.mu.RUnlock()
	if !ok {
		return FileInfo{}, nil, errs.ErrRecordNotFound.WrapMsg("file not found", "id", id)
	}
	return f.info, f.data, nil
}
