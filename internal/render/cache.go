package render

import (
	"bytes"
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/couchcryptid/covid-capacity-etl/internal/domain"
)

// PanelCache memoizes rendered PNG panels. Entries are keyed by the build
// time of the dataset they were drawn from, so a rebuilt dataset never hits
// panels of the previous one; those age out of the LRU instead.
type PanelCache struct {
	maxEntries int

	mu      sync.Mutex
	order   *list.List // front is most recently used
	entries map[string]*list.Element
}

type panelEntry struct {
	key string
	png []byte
}

// NewPanelCache creates a cache holding at most maxEntries panels. A
// non-positive size disables caching.
func NewPanelCache(maxEntries int) *PanelCache {
	return &PanelCache{
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

// Render returns the PNG for opts drawn from ds, rendering it on a miss.
// Failed renders are not cached. The returned slice must not be modified.
func (c *PanelCache) Render(ds *domain.Dataset, builtAt time.Time, opts Options) ([]byte, error) {
	key := panelKey(builtAt, opts)
	if png, ok := c.get(key); ok {
		return png, nil
	}

	var buf bytes.Buffer
	if err := RenderPNG(&buf, ds, opts); err != nil {
		return nil, err
	}
	c.put(key, buf.Bytes())
	return buf.Bytes(), nil
}

// Len reports the number of cached panels.
func (c *PanelCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func panelKey(builtAt time.Time, opts Options) string {
	scale := opts.Scale
	if scale == "" {
		scale = ScaleLinear
	}
	return fmt.Sprintf("%d|%s|%s|%s|%s|%dx%d",
		builtAt.UnixNano(), opts.Field, scale,
		formatBound(opts.From), formatBound(opts.To),
		opts.Width, opts.Height)
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(domain.DateLayout)
}

func (c *PanelCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*panelEntry).png, true
}

func (c *PanelCache) put(key string, png []byte) {
	if c.maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*panelEntry).png = png
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&panelEntry{key: key, png: png})
	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*panelEntry).key)
	}
}
