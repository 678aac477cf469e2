package ocr

import (
	"context"
	"sync"
)

// Store holds page transcripts per document. A page has OCR when a transcript
// was stored for it, even an empty one.
type Store interface {
	HasOcrForDocument(ctx context.Context, documentID string) (bool, error)
	// OcrText returns the transcript of a page; ok is false when none exists.
	OcrText(ctx context.Context, documentID string, page int) (text string, ok bool, err error)
	PutOcrText(ctx context.Context, documentID string, page int, text string) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	pages map[string]map[int]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pages: make(map[string]map[int]string)}
}

func (s *MemoryStore) HasOcrForDocument(ctx context.Context, documentID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages[documentID]) > 0, nil
}

func (s *MemoryStore) OcrText(ctx context.Context, documentID string, page int) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.pages[documentID][page]
	return text, ok, nil
}

func (s *MemoryStore) PutOcrText(ctx context.Context, documentID string, page int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.pages[documentID]
	if doc == nil {
		doc = make(map[int]string)
		s.pages[documentID] = doc
	}
	doc[page] = text
	return nil
}
