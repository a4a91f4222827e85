package embedding

import (
	"container/list"
	"sync"
)

// EmbeddingCache is a fixed-capacity LRU keyed by canonical text. Returned
// vectors are shared, not copied; callers must treat them as read-only.
type EmbeddingCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	byText   map[string]*list.Element
}

type cachePair struct {
	text string
	vec  []float32
}

// NewEmbeddingCache creates a cache holding at most capacity entries.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	return &EmbeddingCache{
		capacity: capacity,
		order:    list.New(),
		byText:   make(map[string]*list.Element),
	}
}

// Get returns the cached vector for text and marks it most recently used.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.byText[text]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cachePair).vec, true
}

// Set stores the vector for text, evicting the least recently used entry
// when the cache is full.
func (c *EmbeddingCache) Set(text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.byText[text]; ok {
		el.Value.(*cachePair).vec = vec
		c.order.MoveToFront(el)
		return
	}
	c.byText[text] = c.order.PushFront(&cachePair{text: text, vec: vec})
	for c.order.Len() > c.capacity {
		tail := c.order.Back()
		c.order.Remove(tail)
		delete(c.byText, tail.Value.(*cachePair).text)
	}
}

// Len reports the number of cached embeddings.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
