// Copyright (c) 2025 Berik Ashimov

package allocator

import (
	"net/netip"
	"sort"

	"routeplan/internal/addrspace"
)

// ClassSummary describes the blocks assigned in one size class.
type ClassSummary struct {
	PrefixLen int
	Count     int
	First     netip.Addr
	Last      netip.Addr
	Addresses uint64
}

// Summary groups the occupied ranges by size class, smallest blocks first.
func (a *Allocator) Summary() []ClassSummary {
	byBits := map[int]*ClassSummary{}
	for _, r := range a.occupied {
		cs, ok := byBits[r.PrefixLen]
		if !ok {
			cs = &ClassSummary{PrefixLen: r.PrefixLen, First: addrspace.FromU32(r.Start)}
			byBits[r.PrefixLen] = cs
		}
		cs.Count++
		cs.Last = addrspace.FromU32(r.End)
		cs.Addresses += addrspace.Size(r.PrefixLen)
	}
	out := make([]ClassSummary, 0, len(byBits))
	for _, cs := range byBits {
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PrefixLen > out[j].PrefixLen })
	return out
}
