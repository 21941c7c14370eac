package plugin

import (
	"strings"

	"github.com/coralstor/hafw/server"
	"github.com/coralstor/hafw/utils"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	FAILOVER_FW_VIPS_PATH = "/failoverfw/vips"
)

type vipAddress struct {
	Type    string `json:"type"`
	Address string `json:"address"`
}

type listVipsRsp struct {
	Vips []vipAddress `json:"vips"`
}

// discoverVips returns the floating addresses currently bound to this
// controller; swapped out by unit tests.
var discoverVips = listVipAddresses

func listVipAddresses() ([]vipAddress, error) {
	bash := utils.Bash{
		Command: "ip -o addr show scope global",
		NoLog:   true,
	}

	ret, out, se, err := bash.RunWithReturn()
	if err != nil {
		return nil, errors.Wrap(err, "unable to list addresses")
	}
	if ret != 0 {
		return nil, errors.Errorf("unable to list addresses, return code: %d, stderr: %s", ret, se)
	}

	mgmtCidrs, err := utils.MergeCidrs(utils.GetMgmtCidrsFromBootInfo())
	if err != nil {
		log.Warnf("ignoring malformed management cidrs: %s", err)
		mgmtCidrs = nil
	}

	return parseVipAddresses(out, utils.GetNodeAddressesFromBootInfo(), mgmtCidrs), nil
}

// parseVipAddresses extracts VIPs from `ip -o addr` output. A VIP is any
// global address that is neither a fixed per-node address nor inside a
// management network.
func parseVipAddresses(output string, nodeAddrs, mgmtCidrs []string) []vipAddress {
	fixed := make(map[string]struct{}, len(nodeAddrs))
	for _, a := range nodeAddrs {
		fixed[a] = struct{}{}
	}

	var vips []vipAddress
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		var family string
		switch fields[2] {
		case "inet":
			family = ADDRESS_FAMILY_INET
		case "inet6":
			family = ADDRESS_FAMILY_INET6
		default:
			continue
		}

		addr := strings.SplitN(fields[3], "/", 2)[0]
		if _, ok := fixed[addr]; ok {
			continue
		}
		if utils.IpInCidrs(addr, mgmtCidrs) {
			continue
		}

		vips = append(vips, vipAddress{Type: family, Address: addr})
	}

	return vips
}

func listVipsHandler(ctx *server.CommandContext) interface{} {
	vips, err := discoverVips()
	utils.PanicOnError(err)

	return listVipsRsp{Vips: vips}
}

func VipEntryPoint() {
	server.RegisterSyncCommandHandler(FAILOVER_FW_VIPS_PATH, listVipsHandler)
}
