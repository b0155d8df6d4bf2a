// Copyright (c) 2025 Berik Ashimov

// Package routing derives the static routes every router of a design needs.
//
// For a given router, networks attached to it are skipped. Every other
// network is routed along the shortest hop path to its owner router; a
// transit network between two other routers is routed toward the nearer of
// its endpoints, the smaller router id winning a tie. The next hop is the
// address of the adjacent router on the link that joins it to the current
// router.
package routing

import (
	"fmt"
	"io"
	"net/netip"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"routeplan/internal/addrspace"
	"routeplan/internal/topology"
)

// ErrInconsistentTopology means a shortest path crosses an edge that has no
// link record. The graph and the link catalogue disagree.
var ErrInconsistentTopology = errors.New("routing: graph edge without link record")

// Kind classifies a destination network.
type Kind int

const (
	KindLan Kind = iota + 1
	KindTransit
	KindSwitchUplink
)

func (k Kind) String() string {
	switch k {
	case KindLan:
		return "lan"
	case KindTransit:
		return "transit"
	case KindSwitchUplink:
		return "uplink"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Destination is a network some router may need a route to. Transit
// destinations are attached to both Owner and Peer; the others only to
// Owner.
type Destination struct {
	Block addrspace.Block
	Owner topology.RouterID
	Peer  topology.RouterID
	Kind  Kind
	Label string
}

// AttachedTo reports whether r is directly connected to the destination.
func (d Destination) AttachedTo(r topology.RouterID) bool {
	if d.Owner == r {
		return true
	}
	return d.Kind == KindTransit && d.Peer == r
}

// RouteEntry is one static route. Via and Hops describe the path and are not
// part of the route identity.
type RouteEntry struct {
	Destination addrspace.Block
	NextHop     netip.Addr
	Via         topology.RouterID
	Hops        int
}

func (e RouteEntry) Network() netip.Addr { return e.Destination.Network }

func (e RouteEntry) PrefixLen() int { return e.Destination.Bits }

// Mask is the decimal netmask of the destination.
func (e RouteEntry) Mask() string { return e.Destination.Mask() }

func (e RouteEntry) String() string {
	return fmt.Sprintf("%s via %s (%s, %d hops)", e.Destination, e.NextHop, e.Via, e.Hops)
}

type routeKey struct {
	network netip.Addr
	bits    int
	nextHop netip.Addr
}

func (e RouteEntry) key() routeKey {
	return routeKey{network: e.Destination.Network, bits: e.Destination.Bits, nextHop: e.NextHop}
}

// TransitDestinations turns every link into a transit destination attached to
// both link routers.
func TransitDestinations(links *topology.LinkCatalog) []Destination {
	all := links.Links()
	out := make([]Destination, 0, len(all))
	for _, l := range all {
		out = append(out, Destination{
			Block: l.Block(),
			Owner: l.A,
			Peer:  l.B,
			Kind:  KindTransit,
			Label: "link " + l.Key().String(),
		})
	}
	return out
}

// Option configures a synthesis run.
type Option func(*config)

type config struct {
	log logrus.FieldLogger
}

// WithLogger traces skipped and emitted routes at debug level.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

func newConfig(opts []Option) config {
	l := logrus.New()
	l.SetOutput(io.Discard)
	c := config{log: l}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Synthesize returns the static routes current needs to reach every
// destination it is not attached to, deduplicated and ordered by destination
// address, prefix length and next hop. Destinations with no path are left
// out.
func Synthesize(current topology.RouterID, g *topology.Graph, links *topology.LinkCatalog, dests []Destination, opts ...Option) ([]RouteEntry, error) {
	cfg := newConfig(opts)
	log := cfg.log.WithField("router", current.String())

	if g == nil || !g.HasRouter(current) {
		log.Debug("router has no links, nothing is reachable")
		return []RouteEntry{}, nil
	}
	tree, err := ShortestPaths(g, current)
	if err != nil {
		return nil, err
	}

	direct := directNetworks(current, links, dests)
	seen := map[routeKey]struct{}{}
	out := []RouteEntry{}
	for _, d := range dests {
		if _, ok := direct[d.Block]; ok {
			continue
		}
		target, ok := routingTarget(tree, d)
		if !ok {
			log.WithField("destination", d.Block.String()).Debug("no path, route skipped")
			continue
		}
		via, ok := tree.NextHop(target)
		if !ok {
			continue
		}
		link, ok := links.Lookup(current, via)
		if !ok {
			return nil, errors.Wrapf(ErrInconsistentTopology, "%s -> %s for %s", current, via, d.Block)
		}
		nh, _ := link.AddrOf(via)
		e := RouteEntry{
			Destination: d.Block,
			NextHop:     nh,
			Via:         via,
			Hops:        int(tree.Distance(target)),
		}
		if _, dup := seen[e.key()]; dup {
			continue
		}
		seen[e.key()] = struct{}{}
		out = append(out, e)
	}
	sortRoutes(out)
	log.WithField("routes", len(out)).Debug("routes synthesized")
	return out, nil
}

// SynthesizeAll runs Synthesize for every router of g.
func SynthesizeAll(g *topology.Graph, links *topology.LinkCatalog, dests []Destination, opts ...Option) (map[topology.RouterID][]RouteEntry, error) {
	out := make(map[topology.RouterID][]RouteEntry)
	for _, r := range g.Routers() {
		routes, err := Synthesize(r, g, links, dests, opts...)
		if err != nil {
			return nil, err
		}
		out[r] = routes
	}
	return out, nil
}

// directNetworks collects every block attached to current: its own
// destinations and each link touching it.
func directNetworks(current topology.RouterID, links *topology.LinkCatalog, dests []Destination) map[addrspace.Block]struct{} {
	direct := map[addrspace.Block]struct{}{}
	for _, d := range dests {
		if d.AttachedTo(current) {
			direct[d.Block] = struct{}{}
		}
	}
	for _, l := range links.LinksOf(current) {
		direct[l.Block()] = struct{}{}
	}
	return direct
}

// routingTarget picks the router a destination is reached through.
func routingTarget(tree *Tree, d Destination) (topology.RouterID, bool) {
	if d.Kind != KindTransit {
		return d.Owner, tree.Reachable(d.Owner)
	}
	a, b := d.Owner, d.Peer
	if a > b {
		a, b = b, a
	}
	da, db := tree.Distance(a), tree.Distance(b)
	switch {
	case da == Unreachable && db == Unreachable:
		return 0, false
	case da <= db:
		return a, true
	default:
		return b, true
	}
}

func sortRoutes(rs []RouteEntry) {
	sort.Slice(rs, func(i, j int) bool {
		if c := rs[i].Destination.Network.Compare(rs[j].Destination.Network); c != 0 {
			return c < 0
		}
		if rs[i].Destination.Bits != rs[j].Destination.Bits {
			return rs[i].Destination.Bits < rs[j].Destination.Bits
		}
		return rs[i].NextHop.Less(rs[j].NextHop)
	})
}
