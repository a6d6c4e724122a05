package fraud

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the first X-Forwarded-For entry, falling back to the
// host part of the direct peer address. The result is canonical.
func ClientIP(header http.Header, peerAddr string) string {
	if fwd := header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return CanonicalIP(ip)
		}
	}
	return PeerIP(peerAddr)
}

// PeerIP returns the canonical host part of a direct peer address
func PeerIP(peerAddr string) string {
	host, _, err := net.SplitHostPort(peerAddr)
	if err != nil {
		return CanonicalIP(peerAddr)
	}
	return CanonicalIP(host)
}

// TrustedClientIP believes X-Forwarded-For only when the direct peer is in
// trusted. The chain is walked from the right and the first address not in
// trusted is the client. Without trusted proxies it is the peer address.
func TrustedClientIP(header http.Header, peerAddr string, trusted []netip.Prefix) string {
	peer := PeerIP(peerAddr)
	if !inPrefixes(peer, trusted) {
		return peer
	}

	hops := strings.Split(header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		ip := CanonicalIP(hop)
		if !inPrefixes(ip, trusted) {
			return ip
		}
	}
	return peer
}

// CanonicalIP unmaps IPv4-in-IPv6 and normalizes IPv6 spelling so one
// visitor has one key. Unparseable input is returned trimmed.
func CanonicalIP(ip string) string {
	ip = strings.TrimSpace(ip)
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ip
	}
	return addr.Unmap().WithZone("").String()
}

// ParsePrefixes parses CIDR networks and single addresses
func ParsePrefixes(networks []string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, n := range networks {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if !strings.Contains(n, "/") {
			addr, err := netip.ParseAddr(n)
			if err != nil {
				return nil, fmt.Errorf("invalid address %q: %w", n, err)
			}
			addr = addr.Unmap()
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(n)
		if err != nil {
			return nil, fmt.Errorf("invalid network %q: %w", n, err)
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes, nil
}

func inPrefixes(ip string, prefixes []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
