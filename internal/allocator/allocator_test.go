// Copyright (c) 2025 Berik Ashimov

package allocator

import (
	"fmt"
	"net"
	"net/netip"
	"testing"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/pkg/errors"

	"routeplan/internal/addrspace"
)

func mustNew(t *testing.T, base string) *Allocator {
	t.Helper()
	a, err := New(netip.MustParseAddr(base))
	if err != nil {
		t.Fatalf("new allocator: %v", err)
	}
	return a
}

func mustRequest(t *testing.T, a *Allocator, bits int, label string) RequestID {
	t.Helper()
	id, err := a.Request(bits, label)
	if err != nil {
		t.Fatalf("request %s: %v", label, err)
	}
	return id
}

func TestExampleScenario(t *testing.T) {
	a := mustNew(t, "10.0.0.0")
	l1 := mustRequest(t, a, 30, "L1")
	l2 := mustRequest(t, a, 30, "L2")
	v1 := mustRequest(t, a, 24, "V1")
	if err := a.Process(); err != nil {
		t.Fatalf("process: %v", err)
	}

	want := map[RequestID]string{
		l1: "10.0.0.4/30",
		l2: "10.0.0.8/30",
		v1: "10.0.1.0/24",
	}
	var blocks []addrspace.Block
	for id, cidrText := range want {
		b, ok := a.Resolve(id)
		if !ok {
			t.Fatalf("request %d not resolved", id)
		}
		if b.String() != cidrText {
			t.Fatalf("request %d: got %s want %s", id, b, cidrText)
		}
		blocks = append(blocks, b.Block)
	}
	for i := range blocks {
		for j := i + 1; j < len(blocks); j++ {
			if blocks[i].Overlaps(blocks[j]) {
				t.Fatalf("overlap %s vs %s", blocks[i], blocks[j])
			}
		}
	}
}

func TestNoOverlapMixedClasses(t *testing.T) {
	a := mustNew(t, "172.16.0.0")
	sizes := []int{24, 30, 26, 30, 28, 23, 30, 29, 25, 30, 27, 24, 30}
	var ids []RequestID
	for i, bits := range sizes {
		ids = append(ids, mustRequest(t, a, bits, fmt.Sprintf("req-%d", i)))
	}
	if err := a.Process(); err != nil {
		t.Fatalf("process: %v", err)
	}

	var nets []*net.IPNet
	for _, id := range ids {
		b, ok := a.Resolve(id)
		if !ok {
			t.Fatalf("request %d not resolved", id)
		}
		_, n, err := net.ParseCIDR(b.String())
		if err != nil {
			t.Fatalf("parse %s: %v", b, err)
		}
		nets = append(nets, n)
	}
	parent := &net.IPNet{IP: net.ParseIP("172.16.0.0").To4(), Mask: net.CIDRMask(12, 32)}
	if err := cidr.VerifyNoOverlap(nets, parent); err != nil {
		t.Fatalf("overlap: %v", err)
	}
}

func TestDeterministic(t *testing.T) {
	run := func() map[RequestID]string {
		a := mustNew(t, "10.20.0.0")
		for i, bits := range []int{27, 30, 24, 30, 26, 29} {
			mustRequest(t, a, bits, fmt.Sprintf("r%d", i))
		}
		if err := a.Process(); err != nil {
			t.Fatalf("process: %v", err)
		}
		out := map[RequestID]string{}
		for _, r := range a.Requests() {
			b, _ := a.Resolve(r.ID)
			out[r.ID] = b.String()
		}
		return out
	}
	first := run()
	for i := 0; i < 5; i++ {
		again := run()
		for id, cidrText := range first {
			if again[id] != cidrText {
				t.Fatalf("run %d: request %d got %s want %s", i, id, again[id], cidrText)
			}
		}
	}
}

func TestSmallerBlocksOccupyLowerSpace(t *testing.T) {
	a := mustNew(t, "10.0.0.0")
	var small, large []RequestID
	for i := 0; i < 70; i++ {
		small = append(small, mustRequest(t, a, 30, fmt.Sprintf("p2p-%d", i)))
	}
	large = append(large, mustRequest(t, a, 24, "lan-a"))
	large = append(large, mustRequest(t, a, 24, "lan-b"))
	if err := a.Process(); err != nil {
		t.Fatalf("process: %v", err)
	}

	var maxSmall uint32
	for _, id := range small {
		b, _ := a.Resolve(id)
		_, end := b.Range()
		if end > maxSmall {
			maxSmall = end
		}
	}
	for _, id := range large {
		b, _ := a.Resolve(id)
		start, _ := b.Range()
		if start <= maxSmall {
			t.Fatalf("/24 %s starts below the /30 class end %s", b, addrspace.FromU32(maxSmall))
		}
	}
	if b, _ := a.Resolve(large[0]); b.String() != "10.0.2.0/24" {
		t.Fatalf("first /24 = %s, want 10.0.2.0/24", b)
	}
}

func TestStableWithinClass(t *testing.T) {
	a := mustNew(t, "10.0.0.0")
	first := mustRequest(t, a, 24, "first")
	mustRequest(t, a, 30, "p2p")
	second := mustRequest(t, a, 24, "second")
	if err := a.Process(); err != nil {
		t.Fatalf("process: %v", err)
	}
	b1, _ := a.Resolve(first)
	b2, _ := a.Resolve(second)
	if b1.String() != "10.0.1.0/24" || b2.String() != "10.0.2.0/24" {
		t.Fatalf("got %s and %s", b1, b2)
	}
}

func TestReservedZeroIndex(t *testing.T) {
	a := mustNew(t, "192.168.0.0")
	var ids []RequestID
	for _, bits := range []int{30, 29, 28, 27, 26, 25, 24, 22, 20} {
		ids = append(ids, mustRequest(t, a, bits, "x"))
	}
	if err := a.Process(); err != nil {
		t.Fatalf("process: %v", err)
	}
	base := addrspace.ToU32(netip.MustParseAddr("192.168.0.0"))
	for _, id := range ids {
		b, _ := a.Resolve(id)
		start, _ := b.Range()
		if (start-base)/uint32(b.Size()) == 0 {
			t.Fatalf("block %s uses index 0 of its class", b)
		}
	}
}

func TestUnalignedBase(t *testing.T) {
	a := mustNew(t, "10.0.0.5")
	link := mustRequest(t, a, 30, "L1")
	lan := mustRequest(t, a, 24, "V1")
	if err := a.Process(); err != nil {
		t.Fatalf("process: %v", err)
	}
	// candidates count from the base rounded down to the block size
	if b, _ := a.Resolve(link); b.String() != "10.0.0.8/30" {
		t.Fatalf("link: got %s", b)
	}
	if b, _ := a.Resolve(lan); b.String() != "10.0.1.0/24" {
		t.Fatalf("lan: got %s", b)
	}
}

func TestInvalidPrefix(t *testing.T) {
	a := mustNew(t, "10.0.0.0")
	for _, bits := range []int{0, -1, 31, 32} {
		if _, err := a.Request(bits, "bad"); !errors.Is(err, ErrInvalidPrefix) {
			t.Fatalf("/%d: expected ErrInvalidPrefix, got %v", bits, err)
		}
	}
}

func TestRequestAfterProcess(t *testing.T) {
	a := mustNew(t, "10.0.0.0")
	mustRequest(t, a, 30, "x")
	if err := a.Process(); err != nil {
		t.Fatalf("process: %v", err)
	}
	if _, err := a.Request(30, "late"); !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestProcessTwiceIsNoop(t *testing.T) {
	a := mustNew(t, "10.0.0.0")
	id := mustRequest(t, a, 30, "x")
	if err := a.Process(); err != nil {
		t.Fatalf("process: %v", err)
	}
	before, _ := a.Resolve(id)
	if err := a.Process(); err != nil {
		t.Fatalf("second process: %v", err)
	}
	after, _ := a.Resolve(id)
	if before != after || len(a.Occupied()) != 1 {
		t.Fatalf("second process changed state: %s -> %s", before, after)
	}
}

func TestResolveUnknown(t *testing.T) {
	a := mustNew(t, "10.0.0.0")
	id := mustRequest(t, a, 30, "x")
	if _, ok := a.Resolve(id); ok {
		t.Fatalf("resolved before processing")
	}
	if err := a.Process(); err != nil {
		t.Fatalf("process: %v", err)
	}
	if _, ok := a.Resolve(id + 100); ok {
		t.Fatalf("resolved unknown id")
	}
}

func TestAddressSpaceExhausted(t *testing.T) {
	a := mustNew(t, "255.255.255.0")
	mustRequest(t, a, 25, "fits")
	mustRequest(t, a, 25, "does-not-fit")
	err := a.Process()
	if !errors.Is(err, ErrAddressSpaceExhausted) {
		t.Fatalf("expected ErrAddressSpaceExhausted, got %v", err)
	}
}

func TestOccupiedSortedAndSummary(t *testing.T) {
	a := mustNew(t, "10.0.0.0")
	mustRequest(t, a, 24, "lan")
	mustRequest(t, a, 30, "p2p-1")
	mustRequest(t, a, 30, "p2p-2")
	if err := a.Process(); err != nil {
		t.Fatalf("process: %v", err)
	}
	occ := a.Occupied()
	for i := 1; i < len(occ); i++ {
		if occ[i-1].Start >= occ[i].Start {
			t.Fatalf("occupied not sorted: %+v", occ)
		}
	}
	sum := a.Summary()
	if len(sum) != 2 || sum[0].PrefixLen != 30 || sum[0].Count != 2 || sum[1].PrefixLen != 24 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum[0].First.String() != "10.0.0.4" || sum[0].Last.String() != "10.0.0.11" {
		t.Fatalf("/30 class span %s-%s", sum[0].First, sum[0].Last)
	}
}
