package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"

	"voice_rag/internal/domain"
)

// DefaultCollection - имя коллекции по умолчанию
const DefaultCollection = "docs"

var errNoEmbedding = errors.New("index stores precomputed vectors only")

// эмбеддинги считает kb, коллекции функция не нужна
func errEmbeddingFunc(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

// catalog - то, чего chromem не хранит: размерность и порядок вставки
type catalog struct {
	Dimension int                     `json:"dimension"`
	NextSeq   uint64                  `json:"next_seq"`
	Entries   map[string]catalogEntry `json:"entries"`
}

type catalogEntry struct {
	Seq    uint64 `json:"seq"`
	Source string `json:"source"`
}

// Chromem - индекс поверх персистентной базы chromem-go
type Chromem struct {
	writeMu sync.Mutex
	mu      sync.RWMutex

	db          *chromem.DB
	coll        *chromem.Collection
	name        string
	catalogPath string
	catalog     catalog
}

// OpenChromem открывает (или создаёт) коллекцию в каталоге dir
func OpenChromem(dir, collection string) (*Chromem, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := chromem.NewPersistentDB(filepath.Join(dir, "chromem"), false)
	if err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}
	coll, err := db.GetOrCreateCollection(collection, nil, errEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", collection, err)
	}

	c := &Chromem{
		db:          db,
		coll:        coll,
		name:        collection,
		catalogPath: filepath.Join(dir, collection+".catalog.json"),
	}
	if err := c.loadCatalog(); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if n := coll.Count(); n != len(c.catalog.Entries) {
		log.Printf("⚠️ Index catalog lists %d entries, collection %s has %d", len(c.catalog.Entries), collection, n)
	}
	return c, nil
}

func (c *Chromem) Add(ctx context.Context, entries []Entry) error {
	if err := domain.ContextError(ctx, "index add"); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	batch, dimension, err := prepare(entries, c.catalog.Dimension)
	if err != nil || len(batch) == 0 {
		return err
	}

	next := c.catalog.NextSeq
	docs := make([]chromem.Document, len(batch))
	added := make(map[string]catalogEntry, len(batch))
	var fresh []string
	for i, e := range batch {
		seq := next
		if old, ok := c.catalog.Entries[e.ID]; ok {
			seq = old.Seq
		} else {
			next++
			fresh = append(fresh, e.ID)
		}
		added[e.ID] = catalogEntry{Seq: seq, Source: e.SourceID()}
		docs[i] = chromem.Document{
			ID:        e.ID,
			Metadata:  cloneEntry(e).Metadata,
			Embedding: append([]float32(nil), e.Vector...),
			Content:   e.Text,
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		// откатываем только новые ID, старые версии уже не вернуть
		if len(fresh) > 0 {
			_ = c.coll.Delete(context.Background(), nil, nil, fresh...)
		}
		return fmt.Errorf("add documents: %w", err)
	}

	previous := make(map[string]catalogEntry, len(added))
	for id, ce := range added {
		if old, ok := c.catalog.Entries[id]; ok {
			previous[id] = old
		}
		c.catalog.Entries[id] = ce
	}
	prevNext, prevDimension := c.catalog.NextSeq, c.catalog.Dimension
	c.catalog.NextSeq = next
	c.catalog.Dimension = dimension

	if err := c.saveCatalog(); err != nil {
		// каталог на диске не обновился: новые ID убираем и из коллекции
		for id := range added {
			if old, ok := previous[id]; ok {
				c.catalog.Entries[id] = old
			} else {
				delete(c.catalog.Entries, id)
			}
		}
		c.catalog.NextSeq = prevNext
		c.catalog.Dimension = prevDimension
		if len(fresh) > 0 {
			_ = c.coll.Delete(context.Background(), nil, nil, fresh...)
		}
		return fmt.Errorf("save catalog: %w", err)
	}
	return nil
}

func (c *Chromem) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if err := domain.ContextError(ctx, "index search"); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	n := c.coll.Count()
	if n == 0 {
		return nil, nil
	}
	if len(query) != c.catalog.Dimension {
		return nil, &domain.DimensionMismatchError{Expected: c.catalog.Dimension, Actual: len(query)}
	}

	// берём все документы: chromem не упорядочивает равные оценки
	results, err := c.coll.QueryEmbedding(ctx, append([]float32(nil), query...), n, nil, nil)
	if err != nil {
		if ctxErr := domain.ContextError(ctx, "index search"); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("query collection: %w", err)
	}

	cands := make([]candidate, 0, len(results))
	for _, res := range results {
		score := res.Similarity
		if math.IsNaN(float64(score)) {
			score = 0
		}
		cands = append(cands, candidate{
			entry: Entry{ID: res.ID, Vector: res.Embedding, Text: res.Content, Metadata: res.Metadata},
			seq:   c.catalog.Entries[res.ID].Seq,
			score: score,
		})
	}
	return rank(cands, k), nil
}

func (c *Chromem) Delete(ctx context.Context, ids ...string) error {
	if err := domain.ContextError(ctx, "index delete"); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	present := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := c.catalog.Entries[id]; ok {
			present = append(present, id)
		}
	}
	if len(present) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.coll.Delete(ctx, nil, nil, present...); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	for _, id := range present {
		delete(c.catalog.Entries, id)
	}
	return c.saveCatalog()
}

func (c *Chromem) Clear(ctx context.Context) error {
	if err := domain.ContextError(ctx, "index clear"); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.DeleteCollection(c.name); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	coll, err := c.db.GetOrCreateCollection(c.name, nil, errEmbeddingFunc)
	if err != nil {
		return fmt.Errorf("recreate collection: %w", err)
	}
	c.coll = coll
	c.catalog = catalog{Entries: make(map[string]catalogEntry)}
	return c.saveCatalog()
}

func (c *Chromem) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.coll.Count()
}

func (c *Chromem) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.catalog.Dimension
}

func (c *Chromem) Sources() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sources := make(map[string]int)
	for _, e := range c.catalog.Entries {
		sources[e.Source]++
	}
	return sources
}

// Close - chromem пишет каждый документ сразу, закрывать нечего
func (c *Chromem) Close() error { return nil }

func (c *Chromem) loadCatalog() error {
	c.catalog = catalog{Entries: make(map[string]catalogEntry)}

	f, err := os.Open(c.catalogPath)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&c.catalog); err != nil {
		return err
	}
	if c.catalog.Entries == nil {
		c.catalog.Entries = make(map[string]catalogEntry)
	}
	return nil
}

// saveCatalog пишет во временный файл и переименовывает
func (c *Chromem) saveCatalog() error {
	tmp := c.catalogPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(c.catalog); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, c.catalogPath)
}
