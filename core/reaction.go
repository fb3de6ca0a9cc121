package core

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// reactionTTL bounds how long a reaction-id's visited-ganglia set is kept
// before it is evicted, realizing the "weak map" spec.md asks for as a
// time-bounded LRU rather than true reference-counted weak references (Go
// has no WeakKeyDictionary equivalent).
const reactionTTL = 2 * time.Minute

const reactionCacheSize = 4096

// reactionTracker records, for each reaction-id observed during one
// originating emission, the set of ganglia that have already seen it. It is
// the loop-suppression mechanism behind the Plexus's reaction routing.
type reactionTracker struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, map[Ganglion]struct{}]
}

func newReactionTracker() *reactionTracker {
	return &reactionTracker{
		cache: expirable.NewLRU[string, map[Ganglion]struct{}](reactionCacheSize, nil, reactionTTL),
	}
}

// markAndDiff records origin (and any already-visited ganglia) against
// reactionID, then returns the set of ganglia in candidates that have not
// yet seen this reaction-id, recording them as visited too.
func (t *reactionTracker) markAndDiff(reactionID string, origin Ganglion, candidates []Ganglion) []Ganglion {
	t.mu.Lock()
	defer t.mu.Unlock()

	visited, ok := t.cache.Get(reactionID)
	if !ok {
		visited = make(map[Ganglion]struct{})
	}
	if origin != nil {
		visited[origin] = struct{}{}
	}

	targets := make([]Ganglion, 0, len(candidates))
	for _, g := range candidates {
		if _, seen := visited[g]; seen {
			continue
		}
		visited[g] = struct{}{}
		targets = append(targets, g)
	}

	t.cache.Add(reactionID, visited)
	return targets
}
