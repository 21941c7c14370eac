package utils

import (
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

const (
	BOOTSTRAP_INFO_FILE = "bootstrap-info.json"

	DEFAULT_SSH_PORT    = 22
	DEFAULT_UI_PORT     = 80
	DEFAULT_UI_TLS_PORT = 443

	NOHA     = "NoHa"
	HAMASTER = "Master"
	HABACKUP = "Backup"
)

// BootstrapInfo carries the per-node identity handed to the agent at
// deploy time: the failover license flag, admin port numbers, the node's
// fixed addresses and the management networks.
var BootstrapInfo map[string]interface{} = make(map[string]interface{})

func bootstrapInfoPath() string {
	return filepath.Join(GetAgentRootPath(), BOOTSTRAP_INFO_FILE)
}

func InitBootstrapInfo() {
	if err := JsonLoadConfig(bootstrapInfoPath(), &BootstrapInfo); err != nil {
		log.Errorf("unable to load %s: %s", bootstrapInfoPath(), err)
	}

	log.Debugf("bootstrap info: %+v", BootstrapInfo)
}

// IsFailoverLicensed reports whether this node is part of a licensed
// HA controller pair. Firewall operations are no-ops without it.
func IsFailoverLicensed() bool {
	licensed, ok := BootstrapInfo["failoverLicensed"].(bool)
	if !ok {
		return false
	}

	return licensed
}

func GetSshPortFromBootInfo() int {
	port, ok := BootstrapInfo["sshPort"].(float64)
	if !ok {
		return DEFAULT_SSH_PORT
	}

	return int(port)
}

func GetWebUiPortFromBootInfo() int {
	port, ok := BootstrapInfo["webUiPort"].(float64)
	if !ok {
		return DEFAULT_UI_PORT
	}

	return int(port)
}

func GetWebUiTlsPortFromBootInfo() int {
	port, ok := BootstrapInfo["webUiTlsPort"].(float64)
	if !ok {
		return DEFAULT_UI_TLS_PORT
	}

	return int(port)
}

// GetNodeAddressesFromBootInfo returns the controller's fixed per-node
// addresses. These are never firewalled; multi-path storage traffic may
// ride on them while VIP traffic is suppressed.
func GetNodeAddressesFromBootInfo() []string {
	return stringSliceFromBootInfo("nodeAddresses")
}

func GetMgmtCidrsFromBootInfo() []string {
	return stringSliceFromBootInfo("managementCidrs")
}

func stringSliceFromBootInfo(key string) []string {
	raw, ok := BootstrapInfo[key].([]interface{})
	if !ok {
		return nil
	}

	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}

	return out
}

func SetHaStatus(status string) {
	BootstrapInfo["haStatus"] = status
}

func GetHaStatus() (status string) {
	haStatus := NOHA
	if s, ok := BootstrapInfo["haStatus"].(string); ok {
		haStatus = s
	}

	return haStatus
}
