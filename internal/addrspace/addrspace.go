// Copyright (c) 2025 Berik Ashimov

// Package addrspace holds the IPv4 block arithmetic shared by the allocator,
// the topology model and the renderers. Addresses are handled as uint32 for
// arithmetic and as netip.Addr everywhere else.
package addrspace

import (
	"net"
	"net/netip"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/pkg/errors"
)

// MaxRequestPrefix is the longest prefix a block may be requested with; /31
// and /32 have no usable host pair.
const MaxRequestPrefix = 30

var (
	ErrNotIPv4      = errors.New("addrspace: address is not IPv4")
	ErrInvalidBits  = errors.New("addrspace: prefix length out of range")
	ErrHostOutOfRng = errors.New("addrspace: host index outside block")
)

// Space is the base network all blocks of one design are carved from.
type Space struct {
	base uint32
}

// New returns the address space anchored at base.
func New(base netip.Addr) (Space, error) {
	if !base.Is4() {
		return Space{}, errors.Wrapf(ErrNotIPv4, "base %s", base)
	}
	return Space{base: ToU32(base)}, nil
}

// Base returns the base address.
func (s Space) Base() netip.Addr { return FromU32(s.base) }

// GridStart is the start of candidate index 0 for blocks of the given
// prefix length: the base rounded down to the block size.
func (s Space) GridStart(bits int) uint32 {
	return s.base &^ uint32(Size(bits)-1)
}

// Candidate returns the start and inclusive end of candidate k for blocks of
// the given prefix length. ok is false when the candidate does not fit in
// the 32-bit space.
func (s Space) Candidate(k uint64, bits int) (start, end uint32, ok bool) {
	size := Size(bits)
	first := uint64(s.GridStart(bits)) + k*size
	last := first + size - 1
	if last > 0xFFFFFFFF {
		return 0, 0, false
	}
	return uint32(first), uint32(last), true
}

// Size is the number of addresses in a block of the given prefix length.
func Size(bits int) uint64 {
	return uint64(1) << uint(32-bits)
}

// ToU32 converts an IPv4 address to its integer form.
func ToU32(a netip.Addr) uint32 {
	b := a.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// FromU32 converts an integer back into an IPv4 address.
func FromU32(v uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

// DecimalMask renders a prefix length as a dotted-decimal netmask.
func DecimalMask(bits int) string {
	m := net.CIDRMask(bits, 32)
	return net.IP(m).String()
}

// HostsToPrefix returns the longest prefix whose block fits hosts plus the
// network, gateway and broadcast addresses. ok is false when not even a /1
// holds them.
func HostsToPrefix(hosts int) (int, bool) {
	need := uint64(hosts) + 3
	for p := MaxRequestPrefix; p >= 1; p-- {
		if Size(p) >= need {
			return p, true
		}
	}
	return 0, false
}

// Block is a contiguous IPv4 range denoted by a network address and prefix
// length. Derived addresses are computed on demand.
type Block struct {
	Network netip.Addr
	Bits    int
}

// BlockFrom builds a block from any address inside it.
func BlockFrom(addr netip.Addr, bits int) (Block, error) {
	if !addr.Is4() {
		return Block{}, errors.Wrapf(ErrNotIPv4, "address %s", addr)
	}
	if bits < 0 || bits > 32 {
		return Block{}, errors.Wrapf(ErrInvalidBits, "/%d", bits)
	}
	p := netip.PrefixFrom(addr, bits).Masked()
	return Block{Network: p.Addr(), Bits: bits}, nil
}

// ParseBlock parses CIDR notation.
func ParseBlock(raw string) (Block, error) {
	p, err := netip.ParsePrefix(raw)
	if err != nil {
		return Block{}, errors.Wrapf(err, "parse block %q", raw)
	}
	return BlockFrom(p.Addr(), p.Bits())
}

func (b Block) Prefix() netip.Prefix { return netip.PrefixFrom(b.Network, b.Bits) }

func (b Block) String() string { return b.Prefix().String() }

// Mask is the dotted-decimal netmask of the block.
func (b Block) Mask() string { return DecimalMask(b.Bits) }

func (b Block) Size() uint64 { return Size(b.Bits) }

// Range returns the first and last address of the block as integers.
func (b Block) Range() (uint32, uint32) {
	start := ToU32(b.Network)
	return start, uint32(uint64(start) + b.Size() - 1)
}

func (b Block) Broadcast() netip.Addr {
	_, last := cidr.AddressRange(b.ipNet())
	return fromIP(last)
}

// Host returns host number n of the block. Negative numbers count back from
// the broadcast address, so Host(-2) is the last usable host.
func (b Block) Host(n int) (netip.Addr, error) {
	ip, err := cidr.Host(b.ipNet(), n)
	if err != nil {
		return netip.Addr{}, errors.Wrapf(ErrHostOutOfRng, "%s host %d: %v", b, n, err)
	}
	return fromIP(ip), nil
}

// FirstHost is the lowest usable host address.
func (b Block) FirstHost() netip.Addr {
	if b.Bits >= 31 {
		return b.Network
	}
	a, _ := b.Host(1)
	return a
}

// LastHost is the highest usable host address.
func (b Block) LastHost() netip.Addr {
	if b.Bits >= 31 {
		return b.Broadcast()
	}
	a, _ := b.Host(-2)
	return a
}

// UsableHosts is the number of assignable addresses in the block.
func (b Block) UsableHosts() uint64 {
	if b.Bits >= 31 {
		return b.Size()
	}
	return b.Size() - 2
}

func (b Block) Contains(a netip.Addr) bool { return b.Prefix().Contains(a) }

// Overlaps reports whether two blocks share any address.
func (b Block) Overlaps(o Block) bool {
	s1, e1 := b.Range()
	s2, e2 := o.Range()
	return !(e1 < s2 || s1 > e2)
}

// Label renders the block as "network mask", the form router CLIs expect.
func (b Block) Label() string {
	return b.Network.String() + " " + b.Mask()
}

func (b Block) ipNet() *net.IPNet {
	a := b.Network.As4()
	return &net.IPNet{IP: net.IP(a[:]), Mask: net.CIDRMask(b.Bits, 32)}
}

func fromIP(ip net.IP) netip.Addr {
	a, _ := netip.AddrFromSlice(ip.To4())
	return a
}
