package plugin

import (
	. "github.com/onsi/ginkgo"
	"github.com/onsi/gomega"
)

var _ = Describe("vip_test", func() {
	ipAddrOutput := "2: eth0    inet 192.168.1.10/24 brd 192.168.1.255 scope global eth0\\       valid_lft forever preferred_lft forever\n" +
		"2: eth0    inet 192.168.1.50/32 scope global eth0\\       valid_lft forever preferred_lft forever\n" +
		"3: eth1    inet 10.20.0.7/16 scope global eth1\\       valid_lft forever preferred_lft forever\n" +
		"3: eth1    inet6 2001:db8::5/64 scope global \\       valid_lft forever preferred_lft forever\n"

	It("tags discovered addresses with their family", func() {
		vips := parseVipAddresses(ipAddrOutput, nil, nil)

		gomega.Expect(vips).To(gomega.Equal([]vipAddress{
			{Type: ADDRESS_FAMILY_INET, Address: "192.168.1.10"},
			{Type: ADDRESS_FAMILY_INET, Address: "192.168.1.50"},
			{Type: ADDRESS_FAMILY_INET, Address: "10.20.0.7"},
			{Type: ADDRESS_FAMILY_INET6, Address: "2001:db8::5"},
		}))
	})

	It("excludes the fixed per-node addresses", func() {
		vips := parseVipAddresses(ipAddrOutput, []string{"192.168.1.10", "2001:db8::5"}, nil)

		gomega.Expect(vips).To(gomega.Equal([]vipAddress{
			{Type: ADDRESS_FAMILY_INET, Address: "192.168.1.50"},
			{Type: ADDRESS_FAMILY_INET, Address: "10.20.0.7"},
		}))
	})

	It("excludes addresses inside the management networks", func() {
		vips := parseVipAddresses(ipAddrOutput, nil, []string{"10.20.0.0/16"})

		gomega.Expect(vips).To(gomega.Equal([]vipAddress{
			{Type: ADDRESS_FAMILY_INET, Address: "192.168.1.10"},
			{Type: ADDRESS_FAMILY_INET, Address: "192.168.1.50"},
			{Type: ADDRESS_FAMILY_INET6, Address: "2001:db8::5"},
		}))
	})

	It("ignores blank and malformed lines", func() {
		vips := parseVipAddresses("\n2: eth0\ngarbage\n", nil, nil)
		gomega.Expect(vips).To(gomega.BeEmpty())
	})
})
