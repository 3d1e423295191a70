package task

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// View is a read-only index over one task-store state: lookup by id, by
// status, and the computed dependency states. Views are immutable; callers
// clone tasks before mutating them.
type View struct {
	Checksum string
	Tasks    []*Task
	ByID     map[string]*Task
	ByStatus map[Status][]*Task
	Deps     map[string]DependencyState
}

// Ready reports whether the task with the given id has all dependencies
// satisfied.
func (v *View) Ready(id string) bool {
	state, ok := v.Deps[id]
	return ok && state.Satisfied()
}

// BuildView computes a fresh view over the tasks.
func BuildView(tasks []*Task) (*View, error) {
	checksum, err := Checksum(tasks)
	if err != nil {
		return nil, err
	}
	byID, _ := IndexByID(tasks)
	byStatus := map[Status][]*Task{}
	for _, t := range tasks {
		byStatus[t.Status] = append(byStatus[t.Status], t)
	}
	return &View{
		Checksum: checksum,
		Tasks:    tasks,
		ByID:     byID,
		ByStatus: byStatus,
		Deps:     ComputeDependencyStates(tasks, nil),
	}, nil
}

// ViewCache memoizes views keyed by the canonical checksum, so repeated
// reads of an unchanged store skip re-indexing.
type ViewCache struct {
	cache *lru.Cache[string, *View]
}

// DefaultViewCacheSize bounds the number of retained store states.
const DefaultViewCacheSize = 16

// NewViewCache builds a cache holding up to size views.
func NewViewCache(size int) (*ViewCache, error) {
	if size <= 0 {
		size = DefaultViewCacheSize
	}
	cache, err := lru.New[string, *View](size)
	if err != nil {
		return nil, err
	}
	return &ViewCache{cache: cache}, nil
}

// Get returns the view for the given tasks, computing and caching it on
// miss.
func (c *ViewCache) Get(tasks []*Task) (*View, error) {
	checksum, err := Checksum(tasks)
	if err != nil {
		return nil, err
	}
	if view, ok := c.cache.Get(checksum); ok {
		return view, nil
	}
	view, err := BuildView(tasks)
	if err != nil {
		return nil, err
	}
	c.cache.Add(checksum, view)
	return view, nil
}

// Len returns the number of cached views.
func (c *ViewCache) Len() int { return c.cache.Len() }
