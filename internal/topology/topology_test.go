// Copyright (c) 2025 Berik Ashimov

package topology

import (
	"testing"

	"github.com/pkg/errors"

	"routeplan/internal/addrspace"
)

func block(t *testing.T, raw string) addrspace.Block {
	t.Helper()
	b, err := addrspace.ParseBlock(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return b
}

func TestNewLinkAssignsHostsByRouterOrder(t *testing.T) {
	l, err := NewLink(3, 1, block(t, "10.0.0.4/30"))
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	if l.A != 1 || l.B != 3 {
		t.Fatalf("endpoints %s %s", l.A, l.B)
	}
	if a, _ := l.AddrOf(1); a.String() != "10.0.0.5" {
		t.Fatalf("R1 addr %s", a)
	}
	if a, _ := l.AddrOf(3); a.String() != "10.0.0.6" {
		t.Fatalf("R3 addr %s", a)
	}
	if _, ok := l.AddrOf(2); ok {
		t.Fatalf("R2 is not on this link")
	}
	if p, _ := l.Peer(3); p != 1 {
		t.Fatalf("peer of R3 = %s", p)
	}
}

func TestNewLinkRejectsSelfLoop(t *testing.T) {
	if _, err := NewLink(2, 2, block(t, "10.0.0.4/30")); !errors.Is(err, ErrSelfLoop) {
		t.Fatalf("expected ErrSelfLoop, got %v", err)
	}
	if _, err := NewLink(0, 2, block(t, "10.0.0.4/30")); !errors.Is(err, ErrInvalidRouter) {
		t.Fatalf("expected ErrInvalidRouter, got %v", err)
	}
}

func TestCatalogLookupBothDirections(t *testing.T) {
	l12, _ := NewLink(1, 2, block(t, "10.0.0.4/30"))
	l23, _ := NewLink(2, 3, block(t, "10.0.0.8/30"))
	c, err := NewLinkCatalog(l23, l12)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	for _, pair := range [][2]RouterID{{1, 2}, {2, 1}, {3, 2}} {
		if _, ok := c.Lookup(pair[0], pair[1]); !ok {
			t.Fatalf("lookup %v failed", pair)
		}
	}
	if _, ok := c.Lookup(1, 3); ok {
		t.Fatalf("unexpected link 1-3")
	}
	links := c.Links()
	if len(links) != 2 || links[0].Key() != KeyOf(1, 2) {
		t.Fatalf("links not ordered: %v", links)
	}
	if got := c.LinksOf(2); len(got) != 2 {
		t.Fatalf("links of R2 = %v", got)
	}
}

func TestCatalogRejectsDuplicatePair(t *testing.T) {
	l12, _ := NewLink(1, 2, block(t, "10.0.0.4/30"))
	l21, _ := NewLink(2, 1, block(t, "10.0.0.8/30"))
	if _, err := NewLinkCatalog(l12, l21); !errors.Is(err, ErrDuplicateLink) {
		t.Fatalf("expected ErrDuplicateLink, got %v", err)
	}
}

func TestGraphFromCatalog(t *testing.T) {
	l12, _ := NewLink(1, 2, block(t, "10.0.0.4/30"))
	l13, _ := NewLink(1, 3, block(t, "10.0.0.8/30"))
	l34, _ := NewLink(3, 4, block(t, "10.0.0.12/30"))
	c, _ := NewLinkCatalog(l12, l13, l34)
	g := c.Graph()
	if g.EdgeCount() != 3 {
		t.Fatalf("edges = %d", g.EdgeCount())
	}
	n := g.Neighbors(1)
	if len(n) != 2 || n[0] != 2 || n[1] != 3 {
		t.Fatalf("neighbors of R1 = %v", n)
	}
	if n := g.Neighbors(4); len(n) != 1 || n[0] != 3 {
		t.Fatalf("neighbors of R4 = %v", n)
	}
	if r := g.Routers(); len(r) != 4 || r[0] != 1 || r[3] != 4 {
		t.Fatalf("routers = %v", r)
	}
}

func TestGraphSelfLoop(t *testing.T) {
	g := NewGraph()
	if err := g.AddEdge(5, 5); !errors.Is(err, ErrSelfLoop) {
		t.Fatalf("expected ErrSelfLoop, got %v", err)
	}
	g.AddRouter(7)
	if !g.HasRouter(7) || len(g.Neighbors(7)) != 0 {
		t.Fatalf("isolated router missing")
	}
}

func TestZeroValuesUsable(t *testing.T) {
	var g Graph
	if err := g.AddEdge(1, 2); err != nil {
		t.Fatalf("add edge: %v", err)
	}
	if g.EdgeCount() != 1 || !g.HasRouter(2) {
		t.Fatalf("zero graph: edges %d", g.EdgeCount())
	}

	var c LinkCatalog
	if _, ok := c.Lookup(1, 2); ok {
		t.Fatalf("empty catalogue found a link")
	}
	l, _ := NewLink(2, 1, block(t, "10.0.0.4/30"))
	if err := c.Add(l); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got, ok := c.Lookup(1, 2); !ok || got.Block().String() != "10.0.0.4/30" {
		t.Fatalf("lookup after add = %v %v", got, ok)
	}
}
