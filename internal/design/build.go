// Copyright (c) 2025 Berik Ashimov

package design

import (
	"fmt"
	"io"
	"net/netip"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"routeplan/internal/addrspace"
	"routeplan/internal/allocator"
	"routeplan/internal/routing"
	"routeplan/internal/topology"
)

type Option func(*buildConfig)

type buildConfig struct {
	log logrus.FieldLogger
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *buildConfig) {
		if log != nil {
			c.log = log
		}
	}
}

// Build validates d, allocates every block and synthesizes the routes of
// every router. Blocks are requested LANs first, then links, then uplinks.
func Build(d *Design, opts ...Option) (*Plan, error) {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	cfg := buildConfig{log: discard}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.log.WithField("plan", d.Name)

	if err := d.Validate(); err != nil {
		return nil, err
	}
	base, err := netip.ParseAddr(d.Base)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidDesign, "base %q", d.Base)
	}
	alloc, err := allocator.New(base, allocator.WithLogger(log))
	if err != nil {
		return nil, err
	}

	lanIDs := make([]allocator.RequestID, len(d.LANs))
	for i, l := range d.LANs {
		if lanIDs[i], err = alloc.Request(l.Prefix, fmt.Sprintf("%s vlan %d %s", Hostname(l.Router), l.VLAN, l.Name)); err != nil {
			return nil, err
		}
	}
	linkIDs := make([]allocator.RequestID, len(d.Links))
	for i, l := range d.Links {
		if linkIDs[i], err = alloc.Request(l.Prefix, fmt.Sprintf("link %s-%s", Hostname(l.A), Hostname(l.B))); err != nil {
			return nil, err
		}
	}
	uplinkIDs := make([]allocator.RequestID, len(d.Uplinks))
	for i, u := range d.Uplinks {
		if uplinkIDs[i], err = alloc.Request(u.Prefix, fmt.Sprintf("uplink %s", Hostname(u.Router))); err != nil {
			return nil, err
		}
	}
	if err := alloc.Process(); err != nil {
		return nil, errors.Wrap(err, "allocate")
	}
	resolve := func(id allocator.RequestID) (addrspace.Block, error) {
		b, ok := alloc.Resolve(id)
		if !ok {
			return addrspace.Block{}, errors.Errorf("request %d has no block", id)
		}
		return b.Block, nil
	}

	plan := &Plan{Name: d.Name, Base: base.String(), Routers: d.Routers}
	var dests []routing.Destination
	kinds := map[addrspace.Block]routing.Kind{}

	lanBlocks := make(map[int][]addrspace.Block)
	for i, l := range d.LANs {
		blk, err := resolve(lanIDs[i])
		if err != nil {
			return nil, err
		}
		plan.LANs = append(plan.LANs, LANBlock{
			Router:    l.Router,
			VLAN:      l.VLAN,
			Name:      l.Name,
			CIDR:      blk.String(),
			Network:   blk.Network.String(),
			Mask:      blk.Mask(),
			Prefix:    blk.Bits,
			Gateway:   blk.LastHost().String(),
			FirstHost: blk.FirstHost().String(),
			Broadcast: blk.Broadcast().String(),
			Usable:    blk.UsableHosts(),
		})
		lanBlocks[l.Router] = append(lanBlocks[l.Router], blk)
		dests = append(dests, routing.Destination{
			Block: blk,
			Owner: topology.RouterID(l.Router),
			Kind:  routing.KindLan,
			Label: l.Name,
		})
		kinds[blk] = routing.KindLan
	}

	catalog, err := topology.NewLinkCatalog()
	if err != nil {
		return nil, err
	}
	for i, l := range d.Links {
		blk, err := resolve(linkIDs[i])
		if err != nil {
			return nil, err
		}
		link, err := topology.NewLink(topology.RouterID(l.A), topology.RouterID(l.B), blk)
		if err != nil {
			return nil, err
		}
		if err := catalog.Add(link); err != nil {
			return nil, err
		}
	}
	for _, l := range catalog.Links() {
		blk := l.Block()
		plan.Links = append(plan.Links, LinkBlock{
			A:       int(l.A),
			B:       int(l.B),
			CIDR:    blk.String(),
			Network: blk.Network.String(),
			Mask:    blk.Mask(),
			Prefix:  blk.Bits,
			AddrA:   l.AddrA.String(),
			AddrB:   l.AddrB.String(),
		})
		kinds[blk] = routing.KindTransit
	}
	dests = append(dests, routing.TransitDestinations(catalog)...)

	switchAddr := map[int]string{}
	for i, u := range d.Uplinks {
		blk, err := resolve(uplinkIDs[i])
		if err != nil {
			return nil, err
		}
		ub := UplinkBlock{
			Router:     u.Router,
			CIDR:       blk.String(),
			Network:    blk.Network.String(),
			Mask:       blk.Mask(),
			Prefix:     blk.Bits,
			RouterAddr: blk.FirstHost().String(),
			SwitchAddr: blk.LastHost().String(),
		}
		plan.Uplinks = append(plan.Uplinks, ub)
		switchAddr[u.Router] = ub.SwitchAddr
		dests = append(dests, routing.Destination{
			Block: blk,
			Owner: topology.RouterID(u.Router),
			Kind:  routing.KindSwitchUplink,
			Label: "uplink " + Hostname(u.Router),
		})
		kinds[blk] = routing.KindSwitchUplink
	}

	g := catalog.Graph()
	for r := 1; r <= d.Routers; r++ {
		g.AddRouter(topology.RouterID(r))
	}
	all, err := routing.SynthesizeAll(g, catalog, dests, routing.WithLogger(log))
	if err != nil {
		return nil, errors.Wrap(err, "synthesize routes")
	}

	for r := 1; r <= d.Routers; r++ {
		if sw, ok := switchAddr[r]; ok {
			for _, blk := range lanBlocks[r] {
				plan.Routes = append(plan.Routes, Route{
					Router:      r,
					Destination: blk.String(),
					Network:     blk.Network.String(),
					Mask:        blk.Mask(),
					Prefix:      blk.Bits,
					NextHop:     sw,
					Kind:        routing.KindLan.String(),
					Local:       true,
				})
			}
		}
		for _, e := range all[topology.RouterID(r)] {
			plan.Routes = append(plan.Routes, Route{
				Router:      r,
				Destination: e.Destination.String(),
				Network:     e.Network().String(),
				Mask:        e.Mask(),
				Prefix:      e.PrefixLen(),
				NextHop:     e.NextHop.String(),
				Via:         int(e.Via),
				Hops:        e.Hops,
				Kind:        kinds[e.Destination].String(),
			})
		}
	}

	for _, cs := range alloc.Summary() {
		plan.Summary = append(plan.Summary, ClassRow{
			Prefix:    cs.PrefixLen,
			Count:     cs.Count,
			First:     cs.First.String(),
			Last:      cs.Last.String(),
			Addresses: cs.Addresses,
		})
	}
	log.WithFields(logrus.Fields{
		"blocks": plan.BlockCount(),
		"routes": len(plan.Routes),
	}).Info("plan built")
	return plan, nil
}
