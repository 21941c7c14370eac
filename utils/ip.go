package utils

import (
	"net"

	cidrman "github.com/EvilSuperstars/go-cidrman"
	"github.com/pkg/errors"
)

func IsIpv4Address(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && ip.To4() != nil
}

func IsIpv6Address(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && ip.To4() == nil
}

// MergeCidrs collapses a CIDR set into its minimal covering set, so
// overlapping management networks from the bootstrap config end up as
// one entry each.
func MergeCidrs(cidrs []string) ([]string, error) {
	merged, err := cidrman.MergeCIDRs(cidrs)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to merge cidrs %v", cidrs)
	}

	return merged, nil
}

// IpInCidrs tells whether addr falls inside any of the given CIDRs.
// Malformed entries are skipped.
func IpInCidrs(addr string, cidrs []string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}

	for _, c := range cidrs {
		_, ipNet, err := net.ParseCIDR(c)
		if err != nil {
			continue
		}

		if ipNet.Contains(ip) {
			return true
		}
	}

	return false
}
