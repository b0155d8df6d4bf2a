// Copyright (c) 2025 Berik Ashimov

package design

import (
	"sort"
	"strconv"
)

// Plan is a built design: every allocated block with its derived addresses
// and the static routes of every router. All addresses are kept in text form
// so a plan round-trips through storage and exports unchanged.
type Plan struct {
	Name    string        `json:"name" yaml:"name"`
	Base    string        `json:"base" yaml:"base"`
	Routers int           `json:"routers" yaml:"routers"`
	LANs    []LANBlock    `json:"lans" yaml:"lans"`
	Links   []LinkBlock   `json:"links" yaml:"links"`
	Uplinks []UplinkBlock `json:"uplinks,omitempty" yaml:"uplinks,omitempty"`
	Routes  []Route       `json:"routes" yaml:"routes"`
	Summary []ClassRow    `json:"summary" yaml:"summary"`
}

type LANBlock struct {
	Router    int    `json:"router" yaml:"router"`
	VLAN      int    `json:"vlan" yaml:"vlan"`
	Name      string `json:"name" yaml:"name"`
	CIDR      string `json:"cidr" yaml:"cidr"`
	Network   string `json:"network" yaml:"network"`
	Mask      string `json:"mask" yaml:"mask"`
	Prefix    int    `json:"prefix" yaml:"prefix"`
	Gateway   string `json:"gateway" yaml:"gateway"`
	FirstHost string `json:"first_host" yaml:"first_host"`
	Broadcast string `json:"broadcast" yaml:"broadcast"`
	Usable    uint64 `json:"usable" yaml:"usable"`
}

type LinkBlock struct {
	A       int    `json:"a" yaml:"a"`
	B       int    `json:"b" yaml:"b"`
	CIDR    string `json:"cidr" yaml:"cidr"`
	Network string `json:"network" yaml:"network"`
	Mask    string `json:"mask" yaml:"mask"`
	Prefix  int    `json:"prefix" yaml:"prefix"`
	AddrA   string `json:"addr_a" yaml:"addr_a"`
	AddrB   string `json:"addr_b" yaml:"addr_b"`
}

type UplinkBlock struct {
	Router     int    `json:"router" yaml:"router"`
	CIDR       string `json:"cidr" yaml:"cidr"`
	Network    string `json:"network" yaml:"network"`
	Mask       string `json:"mask" yaml:"mask"`
	Prefix     int    `json:"prefix" yaml:"prefix"`
	RouterAddr string `json:"router_addr" yaml:"router_addr"`
	SwitchAddr string `json:"switch_addr" yaml:"switch_addr"`
}

// Route is one static route of a router. Local routes point the router's
// own LANs at its layer-3 switch; the rest come from route synthesis.
type Route struct {
	Router      int    `json:"router" yaml:"router"`
	Destination string `json:"destination" yaml:"destination"`
	Network     string `json:"network" yaml:"network"`
	Mask        string `json:"mask" yaml:"mask"`
	Prefix      int    `json:"prefix" yaml:"prefix"`
	NextHop     string `json:"next_hop" yaml:"next_hop"`
	Via         int    `json:"via,omitempty" yaml:"via,omitempty"`
	Hops        int    `json:"hops" yaml:"hops"`
	Kind        string `json:"kind" yaml:"kind"`
	Local       bool   `json:"local,omitempty" yaml:"local,omitempty"`
}

// ClassRow summarises one size class of the allocation.
type ClassRow struct {
	Prefix    int    `json:"prefix" yaml:"prefix"`
	Count     int    `json:"count" yaml:"count"`
	First     string `json:"first" yaml:"first"`
	Last      string `json:"last" yaml:"last"`
	Addresses uint64 `json:"addresses" yaml:"addresses"`
}

// Interface is one end of a point-to-point link seen from a router.
type Interface struct {
	Index    int    `json:"index"`
	Peer     int    `json:"peer"`
	Addr     string `json:"addr"`
	PeerAddr string `json:"peer_addr"`
	Mask     string `json:"mask"`
	Prefix   int    `json:"prefix"`
	CIDR     string `json:"cidr"`
}

// RouterView gathers what one router needs for its configuration.
type RouterView struct {
	ID         int          `json:"id"`
	Hostname   string       `json:"hostname"`
	LANs       []LANBlock   `json:"lans"`
	Interfaces []Interface  `json:"interfaces"`
	Uplink     *UplinkBlock `json:"uplink,omitempty"`
	Routes     []Route      `json:"routes"`
}

// Hostname is the router name used in configurations and reports.
func Hostname(id int) string { return "R" + strconv.Itoa(id) }

// BlockCount is the number of blocks the plan allocated.
func (p *Plan) BlockCount() int { return len(p.LANs) + len(p.Links) + len(p.Uplinks) }

// Router returns the view of router id. ok is false outside 1..Routers.
func (p *Plan) Router(id int) (RouterView, bool) {
	if id < 1 || id > p.Routers {
		return RouterView{}, false
	}
	v := RouterView{ID: id, Hostname: Hostname(id)}
	for _, l := range p.LANs {
		if l.Router == id {
			v.LANs = append(v.LANs, l)
		}
	}
	sort.SliceStable(v.LANs, func(i, j int) bool { return v.LANs[i].VLAN < v.LANs[j].VLAN })

	for _, l := range p.Links {
		switch id {
		case l.A:
			v.Interfaces = append(v.Interfaces, Interface{Peer: l.B, Addr: l.AddrA, PeerAddr: l.AddrB, Mask: l.Mask, Prefix: l.Prefix, CIDR: l.CIDR})
		case l.B:
			v.Interfaces = append(v.Interfaces, Interface{Peer: l.A, Addr: l.AddrB, PeerAddr: l.AddrA, Mask: l.Mask, Prefix: l.Prefix, CIDR: l.CIDR})
		}
	}
	sort.Slice(v.Interfaces, func(i, j int) bool { return v.Interfaces[i].Peer < v.Interfaces[j].Peer })
	for i := range v.Interfaces {
		v.Interfaces[i].Index = i
	}

	for i := range p.Uplinks {
		if p.Uplinks[i].Router == id {
			u := p.Uplinks[i]
			v.Uplink = &u
		}
	}
	for _, r := range p.Routes {
		if r.Router == id {
			v.Routes = append(v.Routes, r)
		}
	}
	return v, true
}

// RoutesOf returns the routes of router id in plan order.
func (p *Plan) RoutesOf(id int) []Route {
	var out []Route
	for _, r := range p.Routes {
		if r.Router == id {
			out = append(out, r)
		}
	}
	return out
}
