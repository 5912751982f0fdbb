package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/crashstore/internal/core/domain"
	"github.com/custodia-labs/crashstore/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interfaces.
var (
	_ driven.ConnectionProvider = (*DocumentStore)(nil)
	_ driven.IndexCreator       = (*DocumentStore)(nil)
)

// DocumentStore is an in-memory document store for testing.
// Bodies are stored as their JSON round-trip, like a real store would see them.
type DocumentStore struct {
	mu      sync.RWMutex
	indices map[string]domain.IndexSettings
	docs    map[string]map[string]*storedDoc
	seq     int64

	createCalls int
	bulkCalls   int
	openScrolls int

	createErr error
	indexErr  error
	bulkErr   error
}

type storedDoc struct {
	seq     int64
	id      string
	docType string
	source  map[string]any
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		indices: make(map[string]domain.IndexSettings),
		docs:    make(map[string]map[string]*storedDoc),
	}
}

// Connect returns a session on the store.
func (s *DocumentStore) Connect(_ context.Context) (driven.Connection, error) {
	return &connection{store: s}, nil
}

// CreateIndex records the index. Existing indices are left alone.
func (s *DocumentStore) CreateIndex(_ context.Context, name string, settings domain.IndexSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.indices[name]; !ok {
		s.indices[name] = settings
	}
	return nil
}

// SetCreateError makes CreateIndex fail with err until reset with nil.
func (s *DocumentStore) SetCreateError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr = err
}

// SetIndexError makes Index fail with err until reset with nil.
func (s *DocumentStore) SetIndexError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexErr = err
}

// SetBulkError makes Bulk fail with err until reset with nil.
func (s *DocumentStore) SetBulkError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulkErr = err
}

// CreateCalls returns how many times CreateIndex was called.
func (s *DocumentStore) CreateCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.createCalls
}

// BulkCalls returns how many bulk submissions were attempted.
func (s *DocumentStore) BulkCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bulkCalls
}

// OpenScrolls returns the number of scrolls not yet closed.
func (s *DocumentStore) OpenScrolls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openScrolls
}

// HasIndex reports whether the index was created.
func (s *DocumentStore) HasIndex(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indices[name]
	return ok
}

// Documents returns the documents of an index in insertion order.
func (s *DocumentStore) Documents(index string) []domain.Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedHits(index, func(*storedDoc) bool { return true }, nil)
}

// Get returns one document by id.
func (s *DocumentStore) Get(index, id string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[index][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc.source, nil
}

func (s *DocumentStore) put(index, docType, id string, body any) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshalling document: %w", err)
	}
	var source map[string]any
	if err := json.Unmarshal(data, &source); err != nil {
		return "", fmt.Errorf("document is not an object: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}

	if s.docs[index] == nil {
		s.docs[index] = make(map[string]*storedDoc)
	}
	if existing, ok := s.docs[index][id]; ok {
		existing.docType = docType
		existing.source = source
		return id, nil
	}
	s.seq++
	s.docs[index][id] = &storedDoc{seq: s.seq, id: id, docType: docType, source: source}
	return id, nil
}

func (s *DocumentStore) sortedHits(index string, keep func(*storedDoc) bool, fields []string) []domain.Hit {
	var docs []*storedDoc
	for _, doc := range s.docs[index] {
		if keep(doc) {
			docs = append(docs, doc)
		}
	}
	slices.SortFunc(docs, func(a, b *storedDoc) int { return int(a.seq - b.seq) })

	hits := make([]domain.Hit, 0, len(docs))
	for _, doc := range docs {
		hits = append(hits, domain.Hit{Index: index, ID: doc.id, Source: project(doc.source, fields)})
	}
	return hits
}

// connection implements driven.Connection.
type connection struct {
	store *DocumentStore
}

func (c *connection) Index(_ context.Context, index, docType, id string, body any) (string, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if c.store.indexErr != nil {
		return "", c.store.indexErr
	}
	return c.store.put(index, docType, id, body)
}

func (c *connection) Bulk(_ context.Context, actions []domain.BulkAction) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.bulkCalls++
	if c.store.bulkErr != nil {
		return c.store.bulkErr
	}
	for _, action := range actions {
		if _, err := c.store.put(action.Index, action.DocType, action.ID, action.Source); err != nil {
			return err
		}
	}
	return nil
}

func (c *connection) Scroll(_ context.Context, req domain.SearchRequest) (driven.Scroll, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	keep := func(doc *storedDoc) bool {
		if req.DocType != "" && doc.docType != req.DocType {
			return false
		}
		return matches(doc.source, req.Query)
	}
	size := req.PageSize
	if size <= 0 {
		size = 100
	}
	c.store.openScrolls++
	return &scroll{
		store: c.store,
		hits:  c.store.sortedHits(req.Index, keep, req.Fields),
		size:  size,
	}, nil
}

func (c *connection) Close() error {
	return nil
}

// scroll serves pages from a snapshot taken when it was opened.
type scroll struct {
	store  *DocumentStore
	hits   []domain.Hit
	size   int
	closed bool
}

func (s *scroll) Next(_ context.Context) ([]domain.Hit, error) {
	if s.closed {
		return nil, fmt.Errorf("scroll closed")
	}
	n := min(s.size, len(s.hits))
	page := s.hits[:n]
	s.hits = s.hits[n:]
	return page, nil
}

func (s *scroll) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.openScrolls--
	return nil
}

func matches(source map[string]any, q domain.Query) bool {
	for _, r := range q.Ranges {
		v, ok := domain.LookupPath(source, r.Field)
		if !ok {
			return false
		}
		str, ok := v.(string)
		if !ok {
			return false
		}
		t, err := time.Parse(time.RFC3339Nano, str)
		if err != nil || t.Before(r.GTE) || t.After(r.LTE) {
			return false
		}
	}
	for _, term := range q.Terms {
		v, ok := domain.LookupPath(source, term.Field)
		if !ok {
			return false
		}
		str := fmt.Sprint(v)
		if !slices.ContainsFunc(term.Values, func(want string) bool {
			return strings.EqualFold(want, str)
		}) {
			return false
		}
	}
	return true
}

// project keeps only the given dotted paths of source.
func project(source map[string]any, fields []string) map[string]any {
	if len(fields) == 0 {
		return source
	}
	out := make(map[string]any)
	for _, field := range fields {
		v, ok := domain.LookupPath(source, field)
		if !ok {
			continue
		}
		setPath(out, strings.Split(field, "."), v)
	}
	return out
}

func setPath(m map[string]any, path []string, v any) {
	for _, part := range path[:len(path)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[part] = next
		}
		m = next
	}
	m[path[len(path)-1]] = v
}
