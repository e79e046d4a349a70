package strategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Directory is the in-memory, tenant-scoped registry of live strategies.
type Directory struct {
	mu    sync.RWMutex
	items map[string]*Strategy
}

func NewDirectory() *Directory {
	return &Directory{items: make(map[string]*Strategy)}
}

func dirKey(owner, name string) string {
	return strings.ToLower(strings.TrimSpace(owner)) + "/" + strings.ToLower(strings.TrimSpace(name))
}

func (d *Directory) Create(owner, name, longSymbol, shortSymbol string, cash decimal.Decimal) (*Strategy, error) {
	s, err := New(owner, name, longSymbol, shortSymbol, cash)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.items[s.Key()]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, s.Key())
	}
	d.items[s.Key()] = s
	return s, nil
}

// Put registers an already built strategy, replacing any previous entry.
func (d *Directory) Put(s *Strategy) {
	if s == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[s.Key()] = s
}

// Get returns nil when the strategy does not exist.
func (d *Directory) Get(owner, name string) *Strategy {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.items[dirKey(owner, name)]
}

// List returns the owner's strategies ordered by creation time.
func (d *Directory) List(owner string) []*Strategy {
	owner = strings.ToLower(strings.TrimSpace(owner))
	d.mu.RLock()
	out := make([]*Strategy, 0)
	for _, s := range d.items {
		if s.owner == owner {
			out = append(out, s)
		}
	}
	d.mu.RUnlock()
	sortByCreation(out)
	return out
}

func (d *Directory) All() []*Strategy {
	d.mu.RLock()
	out := make([]*Strategy, 0, len(d.items))
	for _, s := range d.items {
		out = append(out, s)
	}
	d.mu.RUnlock()
	sortByCreation(out)
	return out
}

func (d *Directory) Delete(owner, name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := dirKey(owner, name)
	if _, ok := d.items[k]; !ok {
		return false
	}
	delete(d.items, k)
	return true
}

func sortByCreation(items []*Strategy) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].createdAt.Equal(items[j].createdAt) {
			return items[i].Key() < items[j].Key()
		}
		return items[i].createdAt.Before(items[j].createdAt)
	})
}

// DeleteOwner drops every strategy the owner holds and returns how many.
func (d *Directory) DeleteOwner(owner string) int {
	owner = strings.ToLower(strings.TrimSpace(owner))
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for k, s := range d.items {
		if s.owner == owner {
			delete(d.items, k)
			n++
		}
	}
	return n
}
