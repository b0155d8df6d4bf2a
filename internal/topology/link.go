// Copyright (c) 2025 Berik Ashimov

package topology

import (
	"fmt"
	"net/netip"
	"sort"

	"github.com/pkg/errors"

	"routeplan/internal/addrspace"
)

var (
	ErrSelfLoop      = errors.New("topology: router cannot link to itself")
	ErrDuplicateLink = errors.New("topology: duplicate link between routers")
	ErrInvalidRouter = errors.New("topology: router id must be positive")
	ErrLinkTooSmall  = errors.New("topology: link block has no host pair")
)

// RouterID identifies a router of the design, starting at 1.
type RouterID int

func (r RouterID) String() string { return fmt.Sprintf("R%d", int(r)) }

// LinkKey is the ordered router pair a point-to-point link is keyed by.
type LinkKey struct {
	Low  RouterID
	High RouterID
}

// KeyOf orders a and b into a LinkKey.
func KeyOf(a, b RouterID) LinkKey {
	if a > b {
		a, b = b, a
	}
	return LinkKey{Low: a, High: b}
}

func (k LinkKey) String() string { return fmt.Sprintf("%s-%s", k.Low, k.High) }

// Link is a point-to-point transit network between two routers. A is always
// the lower router id.
type Link struct {
	A       RouterID
	B       RouterID
	Network netip.Addr
	Bits    int
	AddrA   netip.Addr
	AddrB   netip.Addr
}

// NewLink builds a link over blk. The lower router id gets the first usable
// host, the higher one the last usable host.
func NewLink(a, b RouterID, blk addrspace.Block) (Link, error) {
	if a <= 0 || b <= 0 {
		return Link{}, errors.Wrapf(ErrInvalidRouter, "link %d-%d", a, b)
	}
	if a == b {
		return Link{}, errors.Wrapf(ErrSelfLoop, "router %s", a)
	}
	if blk.Bits > addrspace.MaxRequestPrefix {
		return Link{}, errors.Wrapf(ErrLinkTooSmall, "%s", blk)
	}
	k := KeyOf(a, b)
	return Link{
		A:       k.Low,
		B:       k.High,
		Network: blk.Network,
		Bits:    blk.Bits,
		AddrA:   blk.FirstHost(),
		AddrB:   blk.LastHost(),
	}, nil
}

func (l Link) Key() LinkKey { return KeyOf(l.A, l.B) }

func (l Link) Block() addrspace.Block {
	return addrspace.Block{Network: l.Network, Bits: l.Bits}
}

// Touches reports whether r is one of the link endpoints.
func (l Link) Touches(r RouterID) bool { return l.A == r || l.B == r }

// AddrOf returns the address r uses on this link.
func (l Link) AddrOf(r RouterID) (netip.Addr, bool) {
	switch r {
	case l.A:
		return l.AddrA, true
	case l.B:
		return l.AddrB, true
	}
	return netip.Addr{}, false
}

// Peer returns the router on the other side of the link from r.
func (l Link) Peer(r RouterID) (RouterID, bool) {
	switch r {
	case l.A:
		return l.B, true
	case l.B:
		return l.A, true
	}
	return 0, false
}

func (l Link) String() string {
	return fmt.Sprintf("%s %s (%s=%s %s=%s)", l.Key(), l.Block(), l.A, l.AddrA, l.B, l.AddrB)
}

// LinkCatalog indexes links by router pair. Lookups resolve in both
// directions. The zero value is an empty catalogue.
type LinkCatalog struct {
	byKey map[LinkKey]Link
}

// NewLinkCatalog indexes links, rejecting duplicate pairs.
func NewLinkCatalog(links ...Link) (*LinkCatalog, error) {
	c := &LinkCatalog{byKey: make(map[LinkKey]Link, len(links))}
	for _, l := range links {
		if err := c.Add(l); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add registers l.
func (c *LinkCatalog) Add(l Link) error {
	if l.A == l.B {
		return errors.Wrapf(ErrSelfLoop, "router %s", l.A)
	}
	if c.byKey == nil {
		c.byKey = map[LinkKey]Link{}
	}
	k := l.Key()
	if _, ok := c.byKey[k]; ok {
		return errors.Wrapf(ErrDuplicateLink, "%s", k)
	}
	if l.A > l.B {
		l.A, l.B = l.B, l.A
		l.AddrA, l.AddrB = l.AddrB, l.AddrA
	}
	c.byKey[k] = l
	return nil
}

// Lookup returns the link between a and b in either order.
func (c *LinkCatalog) Lookup(a, b RouterID) (Link, bool) {
	if c == nil {
		return Link{}, false
	}
	l, ok := c.byKey[KeyOf(a, b)]
	return l, ok
}

func (c *LinkCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byKey)
}

// Links returns every link ordered by router pair.
func (c *LinkCatalog) Links() []Link {
	if c == nil {
		return nil
	}
	out := make([]Link, 0, len(c.byKey))
	for _, l := range c.byKey {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// LinksOf returns the links touching r ordered by peer id.
func (c *LinkCatalog) LinksOf(r RouterID) []Link {
	var out []Link
	for _, l := range c.Links() {
		if l.Touches(r) {
			out = append(out, l)
		}
	}
	return out
}

// Graph builds the router adjacency graph of the catalogue.
func (c *LinkCatalog) Graph() *Graph {
	g := NewGraph()
	for _, l := range c.Links() {
		// self loops never reach the catalogue
		_ = g.AddEdge(l.A, l.B)
	}
	return g
}
