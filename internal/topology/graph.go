// Copyright (c) 2025 Berik Ashimov

// Package topology models the routers of a design, the point-to-point links
// between them and the undirected hop-count graph used for route synthesis.
package topology

import (
	"sort"

	"github.com/pkg/errors"
)

// Graph is an undirected graph of routers where every edge costs one hop.
// The zero value is an empty graph ready to use.
type Graph struct {
	adj map[RouterID]map[RouterID]struct{}
}

func NewGraph() *Graph {
	return &Graph{adj: map[RouterID]map[RouterID]struct{}{}}
}

// AddRouter adds r without any edge. Adding an existing router is a no-op.
func (g *Graph) AddRouter(r RouterID) {
	if g.adj == nil {
		g.adj = map[RouterID]map[RouterID]struct{}{}
	}
	if _, ok := g.adj[r]; !ok {
		g.adj[r] = map[RouterID]struct{}{}
	}
}

// AddEdge inserts a bidirectional edge between a and b.
func (g *Graph) AddEdge(a, b RouterID) error {
	if a == b {
		return errors.Wrapf(ErrSelfLoop, "router %s", a)
	}
	g.AddRouter(a)
	g.AddRouter(b)
	g.adj[a][b] = struct{}{}
	g.adj[b][a] = struct{}{}
	return nil
}

func (g *Graph) HasRouter(r RouterID) bool {
	_, ok := g.adj[r]
	return ok
}

// Neighbors returns the routers adjacent to r in ascending id order.
func (g *Graph) Neighbors(r RouterID) []RouterID {
	out := make([]RouterID, 0, len(g.adj[r]))
	for n := range g.adj[r] {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Routers returns every router in ascending id order.
func (g *Graph) Routers() []RouterID {
	out := make([]RouterID, 0, len(g.adj))
	for r := range g.adj {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EdgeCount is the number of undirected edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, peers := range g.adj {
		n += len(peers)
	}
	return n / 2
}
