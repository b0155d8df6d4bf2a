// Copyright (c) 2025 Berik Ashimov

package design

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"routeplan/internal/addrspace"
	"routeplan/internal/topology"
)

var ErrInvalidDesign = errors.New("design: invalid")

// Issue is one validation finding.
type Issue struct {
	Field  string `json:"field" yaml:"field"`
	Detail string `json:"detail" yaml:"detail"`
}

func (i Issue) String() string { return i.Field + ": " + i.Detail }

// ValidationError carries every issue found in a design. errors.Is matches
// it against ErrInvalidDesign.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, i := range e.Issues {
		parts = append(parts, i.String())
	}
	return ErrInvalidDesign.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidDesign }

type issues []Issue

func (is *issues) add(field, format string, args ...any) {
	*is = append(*is, Issue{Field: field, Detail: fmt.Sprintf(format, args...)})
}

// Validate checks the design after defaults have been applied.
func (d *Design) Validate() error {
	var is issues

	if d.Base == "" {
		is.add("base", "is required")
	} else if a, err := netip.ParseAddr(d.Base); err != nil || !a.Is4() {
		is.add("base", "%q is not an IPv4 address", d.Base)
	}
	if d.Routers < 1 {
		is.add("routers", "must be at least 1")
	}

	vlans := map[[2]int]bool{}
	for i, l := range d.LANs {
		field := "lans[" + itoa(i) + "]"
		d.checkRouter(&is, field+".router", l.Router)
		if l.VLAN < MinVLAN || l.VLAN > MaxVLAN {
			is.add(field+".vlan", "%d outside %d..%d", l.VLAN, MinVLAN, MaxVLAN)
		}
		key := [2]int{l.Router, l.VLAN}
		if vlans[key] {
			is.add(field+".vlan", "vlan %d already defined on router %d", l.VLAN, l.Router)
		}
		vlans[key] = true
		if l.Hosts < 0 {
			is.add(field+".hosts", "must not be negative")
		}
		if l.Hosts > 0 {
			need, ok := addrspace.HostsToPrefix(l.Hosts)
			if !ok {
				is.add(field+".hosts", "%d hosts do not fit in /1", l.Hosts)
				continue
			}
			if l.Prefix > need {
				is.add(field+".hosts", "%d hosts do not fit in /%d", l.Hosts, l.Prefix)
			}
		}
		checkPrefix(&is, field+".prefix", l.Prefix)
	}

	pairs := map[topology.LinkKey]bool{}
	for i, l := range d.Links {
		field := "links[" + itoa(i) + "]"
		d.checkRouter(&is, field+".a", l.A)
		d.checkRouter(&is, field+".b", l.B)
		if l.A == l.B {
			is.add(field, "router %d cannot connect to itself", l.A)
			continue
		}
		key := topology.KeyOf(topology.RouterID(l.A), topology.RouterID(l.B))
		if pairs[key] {
			is.add(field, "routers %d and %d are already connected", l.A, l.B)
		}
		pairs[key] = true
		checkPrefix(&is, field+".prefix", l.Prefix)
	}

	uplinks := map[int]bool{}
	for i, u := range d.Uplinks {
		field := "uplinks[" + itoa(i) + "]"
		d.checkRouter(&is, field+".router", u.Router)
		if uplinks[u.Router] {
			is.add(field+".router", "router %d already has an uplink", u.Router)
		}
		uplinks[u.Router] = true
		checkPrefix(&is, field+".prefix", u.Prefix)
	}

	if len(is) == 0 {
		return nil
	}
	return &ValidationError{Issues: is}
}

func (d *Design) checkRouter(is *issues, field string, r int) {
	if r < 1 || r > d.Routers {
		is.add(field, "router %d outside 1..%d", r, d.Routers)
	}
}

func checkPrefix(is *issues, field string, bits int) {
	if bits < 1 || bits > addrspace.MaxRequestPrefix {
		is.add(field, "/%d outside 1..%d", bits, addrspace.MaxRequestPrefix)
	}
}

func itoa(i int) string { return strconv.Itoa(i) }
