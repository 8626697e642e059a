package storage

import (
	"errors"
	"sync"

	"github.com/automerge/automerge-go"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/tandem/backend/internal/board"
)

var (
	errMissingBlobStore = errors.New("storage: blob store is required")
	noOpLogger          = zap.NewNop()
)

// DocStore owns the live automerge handle for every loaded document and
// tracks which documents have advanced past their last flush. Callers hold
// one critical section across document mutations, saves and FlushAll; the
// internal mutex only guards the cache and dirty maps for lookups arriving
// outside that section.
type DocStore struct {
	store  BlobStore
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]*automerge.Doc
	dirty map[string]struct{}
}

// DocStoreConfig describes the dependencies of a DocStore.
type DocStoreConfig struct {
	Store  BlobStore
	Logger *zap.Logger
}

// NewDocStore constructs an empty document registry.
func NewDocStore(cfg DocStoreConfig) (*DocStore, error) {
	if cfg.Store == nil {
		return nil, errMissingBlobStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &DocStore{
		store:  cfg.Store,
		logger: logger,
		cache:  make(map[string]*automerge.Doc),
		dirty:  make(map[string]struct{}),
	}, nil
}

// Get returns the live handle for a document, loading it from the blob
// store or initializing an empty document of the appropriate shape.
func (d *DocStore) Get(key board.DocKey) (*automerge.Doc, error) {
	blobKey := key.BlobKey()

	d.mu.Lock()
	if doc, ok := d.cache[blobKey]; ok {
		d.mu.Unlock()
		return doc, nil
	}
	d.mu.Unlock()

	content, present, err := d.store.Read(blobKey)
	if err != nil {
		return nil, err
	}

	var doc *automerge.Doc
	if present {
		doc, err = board.LoadDocument(content)
	} else {
		doc, err = board.NewEmptyDocument(key)
	}
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if cached, ok := d.cache[blobKey]; ok {
		return cached, nil
	}
	d.cache[blobKey] = doc
	return doc, nil
}

// Lookup returns the cached handle without touching the blob store.
func (d *DocStore) Lookup(key board.DocKey) (*automerge.Doc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.cache[key.BlobKey()]
	return doc, ok
}

// Exists reports whether the document is cached or persisted.
func (d *DocStore) Exists(key board.DocKey) (bool, error) {
	d.mu.Lock()
	_, cached := d.cache[key.BlobKey()]
	d.mu.Unlock()
	if cached {
		return true, nil
	}
	_, present, err := d.store.Read(key.BlobKey())
	return present, err
}

// Create initializes an empty document, caches it and marks it dirty so the
// next flush persists it. Used when a registry action creates a list.
func (d *DocStore) Create(key board.DocKey) (*automerge.Doc, error) {
	doc, err := board.NewEmptyDocument(key)
	if err != nil {
		return nil, err
	}
	blobKey := key.BlobKey()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache[blobKey] = doc
	d.dirty[blobKey] = struct{}{}
	return doc, nil
}

// MarkDirty records that the in-memory document has advanced past the last
// flush.
func (d *DocStore) MarkDirty(key board.DocKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dirty[key.BlobKey()] = struct{}{}
}

// Forget drops the cached handle and dirty bit without writing. Used when a
// list is deleted.
func (d *DocStore) Forget(key board.DocKey) {
	blobKey := key.BlobKey()
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cache, blobKey)
	delete(d.dirty, blobKey)
}

// DeleteBlob removes the persisted blob for a document.
func (d *DocStore) DeleteBlob(key board.DocKey) error {
	return d.store.Delete(key.BlobKey())
}

// DirtyCount reports how many documents await a flush.
func (d *DocStore) DirtyCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dirty)
}

// CachedKeys returns the keys of every live document handle.
func (d *DocStore) CachedKeys() []board.DocKey {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]board.DocKey, 0, len(d.cache))
	for blobKey := range d.cache {
		key, err := board.ParseBlobKey(blobKey)
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// FlushAll serializes every dirty document and writes it through the blob
// store. The caller must hold the mutation critical section so saves never
// observe a half-applied commit; a failed write re-marks the key so the
// next flush retries it.
func (d *DocStore) FlushAll() error {
	type pending struct {
		blobKey string
		content []byte
	}
	d.mu.Lock()
	writes := make([]pending, 0, len(d.dirty))
	for blobKey := range d.dirty {
		doc, ok := d.cache[blobKey]
		if !ok {
			delete(d.dirty, blobKey)
			continue
		}
		writes = append(writes, pending{blobKey: blobKey, content: board.SaveDocument(doc)})
		delete(d.dirty, blobKey)
	}
	d.mu.Unlock()

	var flushErr error
	for _, write := range writes {
		if err := d.store.Write(write.blobKey, write.content); err != nil {
			d.logger.Error("document flush failed",
				zap.String("blob_key", write.blobKey),
				zap.Error(err))
			d.mu.Lock()
			d.dirty[write.blobKey] = struct{}{}
			d.mu.Unlock()
			flushErr = errors.Join(flushErr, err)
		}
	}
	return flushErr
}
