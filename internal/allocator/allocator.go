// Copyright (c) 2025 Berik Ashimov

// Package allocator assigns disjoint address blocks of mixed sizes out of a
// single base network.
//
// Allocation is two-phase. Callers first register every block they need with
// Request, then call Process once. Process assigns the smallest blocks first
// (longest prefix first, submission order within a prefix) and scans each
// size class from candidate index 1; index 0 of every class is never handed
// out. Resolve returns the block assigned to a request.
package allocator

import (
	"io"
	"net/netip"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"routeplan/internal/addrspace"
)

var (
	ErrInvalidPrefix         = errors.New("allocator: prefix length must be between 1 and 30")
	ErrAlreadyProcessed      = errors.New("allocator: requests are closed, allocation already processed")
	ErrAddressSpaceExhausted = errors.New("allocator: address space exhausted")
)

// RequestID identifies one block request within an Allocator.
type RequestID int

// Request is a sizing request collected before processing.
type Request struct {
	ID        RequestID
	PrefixLen int
	Label     string
}

// Block is the result of processing one request.
type Block struct {
	RequestID RequestID
	addrspace.Block
}

// Range is an occupied address interval, both ends inclusive.
type Range struct {
	Start     uint32
	End       uint32
	PrefixLen int
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithLogger sets the logger used for assignment tracing.
func WithLogger(log logrus.FieldLogger) Option {
	return func(a *Allocator) {
		if log != nil {
			a.log = log
		}
	}
}

// Allocator owns the occupied range set and the request to block mapping of
// one design. It is not safe for concurrent use.
type Allocator struct {
	space     addrspace.Space
	requests  []Request
	blocks    map[RequestID]Block
	occupied  []Range
	nextID    RequestID
	processed bool
	log       logrus.FieldLogger
}

// New returns an allocator carving blocks from base.
func New(base netip.Addr, opts ...Option) (*Allocator, error) {
	space, err := addrspace.New(base)
	if err != nil {
		return nil, err
	}
	a := &Allocator{
		space:  space,
		blocks: map[RequestID]Block{},
		log:    discardLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Base returns the base address the allocator was built with.
func (a *Allocator) Base() netip.Addr { return a.space.Base() }

// Request registers a block of the given prefix length. It fails once
// Process has run.
func (a *Allocator) Request(prefixLen int, label string) (RequestID, error) {
	if a.processed {
		return 0, errors.Wrapf(ErrAlreadyProcessed, "request %q", label)
	}
	if prefixLen < 1 || prefixLen > addrspace.MaxRequestPrefix {
		return 0, errors.Wrapf(ErrInvalidPrefix, "request %q: /%d", label, prefixLen)
	}
	id := a.nextID
	a.nextID++
	a.requests = append(a.requests, Request{ID: id, PrefixLen: prefixLen, Label: label})
	a.log.WithFields(logrus.Fields{
		"request": id,
		"prefix":  prefixLen,
		"label":   label,
	}).Debug("block requested")
	return id, nil
}

// Process assigns every pending request. A second call is a no-op.
func (a *Allocator) Process() error {
	if a.processed {
		a.log.Warn("allocation already processed")
		return nil
	}
	a.processed = true

	ordered := make([]Request, len(a.requests))
	copy(ordered, a.requests)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PrefixLen > ordered[j].PrefixLen
	})

	for _, req := range ordered {
		start, end, err := a.firstFree(req.PrefixLen)
		if err != nil {
			return errors.Wrapf(err, "request %d (%s) /%d", req.ID, req.Label, req.PrefixLen)
		}
		a.occupy(Range{Start: start, End: end, PrefixLen: req.PrefixLen})
		blk := Block{
			RequestID: req.ID,
			Block:     addrspace.Block{Network: addrspace.FromU32(start), Bits: req.PrefixLen},
		}
		a.blocks[req.ID] = blk
		a.log.WithFields(logrus.Fields{
			"request": req.ID,
			"block":   blk.String(),
			"label":   req.Label,
		}).Debug("block assigned")
	}
	a.log.WithField("blocks", len(a.blocks)).Info("allocation processed")
	return nil
}

// Resolve returns the block assigned to id.
func (a *Allocator) Resolve(id RequestID) (Block, bool) {
	if !a.processed {
		return Block{}, false
	}
	b, ok := a.blocks[id]
	return b, ok
}

// Requests returns all requests in submission order.
func (a *Allocator) Requests() []Request {
	out := make([]Request, len(a.requests))
	copy(out, a.requests)
	return out
}

// Occupied returns the occupied ranges ordered by start address.
func (a *Allocator) Occupied() []Range {
	out := make([]Range, len(a.occupied))
	copy(out, a.occupied)
	return out
}

// firstFree scans candidates k = 1, 2, ... of the size class and returns the
// first one that overlaps no occupied range. A candidate that collides with
// an occupied range is skipped together with every later candidate that
// would collide with the same range.
func (a *Allocator) firstFree(bits int) (uint32, uint32, error) {
	size := addrspace.Size(bits)
	grid := uint64(a.space.GridStart(bits))
	k := uint64(1)
	for {
		start, end, ok := a.space.Candidate(k, bits)
		if !ok {
			return 0, 0, ErrAddressSpaceExhausted
		}
		hit, overlaps := a.overlapping(start, end)
		if !overlaps {
			return start, end, nil
		}
		next := (uint64(hit.End) + 1 - grid + size - 1) / size
		if next <= k {
			next = k + 1
		}
		k = next
	}
}

// overlapping returns the first occupied range intersecting [start, end].
// Occupied ranges never overlap each other, so ordering by start also orders
// them by end.
func (a *Allocator) overlapping(start, end uint32) (Range, bool) {
	i := sort.Search(len(a.occupied), func(i int) bool {
		return a.occupied[i].End >= start
	})
	if i < len(a.occupied) && rangesOverlap(start, end, a.occupied[i].Start, a.occupied[i].End) {
		return a.occupied[i], true
	}
	return Range{}, false
}

func (a *Allocator) occupy(r Range) {
	i := sort.Search(len(a.occupied), func(i int) bool {
		return a.occupied[i].Start > r.Start
	})
	a.occupied = append(a.occupied, Range{})
	copy(a.occupied[i+1:], a.occupied[i:])
	a.occupied[i] = r
}

func rangesOverlap(s, e, os, oe uint32) bool {
	return !(e < os || s > oe)
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
