// Copyright (c) 2025 Berik Ashimov

package routing

import (
	"container/heap"
	"math"

	"github.com/pkg/errors"

	"routeplan/internal/topology"
)

// Unreachable is the distance reported for routers with no path from the
// source.
const Unreachable = math.MaxInt64

// hopCost is the weight of every edge in the router graph.
const hopCost int64 = 1

var ErrUnknownSource = errors.New("routing: source router not in graph")

// Tree is the result of one single-source shortest path run.
type Tree struct {
	Source topology.RouterID
	dist   map[topology.RouterID]int64
	prev   map[topology.RouterID]topology.RouterID
}

// ShortestPaths runs Dijkstra from source over g. Neighbours are relaxed in
// ascending id order and the queue breaks distance ties on the smaller router
// id, so predecessors are the same on every run.
func ShortestPaths(g *topology.Graph, source topology.RouterID) (*Tree, error) {
	if g == nil || !g.HasRouter(source) {
		return nil, errors.Wrapf(ErrUnknownSource, "router %s", source)
	}
	routers := g.Routers()
	r := &runner{
		g:       g,
		dist:    make(map[topology.RouterID]int64, len(routers)),
		prev:    make(map[topology.RouterID]topology.RouterID, len(routers)),
		visited: make(map[topology.RouterID]bool, len(routers)),
		pq:      make(routerPQ, 0, len(routers)),
	}
	for _, id := range routers {
		r.dist[id] = Unreachable
	}
	r.dist[source] = 0
	heap.Init(&r.pq)
	heap.Push(&r.pq, &routerItem{id: source, dist: 0})
	r.process()
	return &Tree{Source: source, dist: r.dist, prev: r.prev}, nil
}

// Distance returns the hop distance to target, or Unreachable.
func (t *Tree) Distance(target topology.RouterID) int64 {
	d, ok := t.dist[target]
	if !ok {
		return Unreachable
	}
	return d
}

func (t *Tree) Reachable(target topology.RouterID) bool {
	return t.Distance(target) != Unreachable
}

// Path returns the routers from the source to target inclusive, or nil when
// target is unreachable.
func (t *Tree) Path(target topology.RouterID) []topology.RouterID {
	if !t.Reachable(target) {
		return nil
	}
	var rev []topology.RouterID
	for cur := target; ; {
		rev = append(rev, cur)
		if cur == t.Source {
			break
		}
		p, ok := t.prev[cur]
		if !ok {
			return nil
		}
		cur = p
	}
	out := make([]topology.RouterID, len(rev))
	for i, id := range rev {
		out[len(rev)-1-i] = id
	}
	return out
}

// NextHop returns the router right after the source on the path to target.
// ok is false for the source itself and for unreachable targets.
func (t *Tree) NextHop(target topology.RouterID) (topology.RouterID, bool) {
	p := t.Path(target)
	if len(p) < 2 {
		return 0, false
	}
	return p[1], true
}

// runner holds the working set of one run. It is never shared.
type runner struct {
	g       *topology.Graph
	dist    map[topology.RouterID]int64
	prev    map[topology.RouterID]topology.RouterID
	visited map[topology.RouterID]bool
	pq      routerPQ
}

func (r *runner) process() {
	for r.pq.Len() > 0 {
		item := heap.Pop(&r.pq).(*routerItem)
		u := item.id
		// stale entry left by lazy decrease-key
		if r.visited[u] {
			continue
		}
		r.visited[u] = true
		r.relax(u)
	}
}

func (r *runner) relax(u topology.RouterID) {
	for _, v := range r.g.Neighbors(u) {
		if r.visited[v] {
			continue
		}
		nd := r.dist[u] + hopCost
		if nd < r.dist[v] {
			r.dist[v] = nd
			r.prev[v] = u
			heap.Push(&r.pq, &routerItem{id: v, dist: nd})
		}
	}
}

type routerItem struct {
	id   topology.RouterID
	dist int64
}

// routerPQ is a min-heap ordered by distance, then router id.
type routerPQ []*routerItem

func (pq routerPQ) Len() int { return len(pq) }

func (pq routerPQ) Less(i, j int) bool {
	if pq[i].dist != pq[j].dist {
		return pq[i].dist < pq[j].dist
	}
	return pq[i].id < pq[j].id
}

func (pq routerPQ) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *routerPQ) Push(x any) { *pq = append(*pq, x.(*routerItem)) }

func (pq *routerPQ) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}
