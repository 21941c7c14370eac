package plugin

import (
	"fmt"
	"os"
	"strings"

	"github.com/coralstor/hafw/server"
	"github.com/coralstor/hafw/utils"

	"github.com/fatih/structs"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	FAILOVER_FW_DROP_ALL_PATH   = "/failoverfw/dropall"
	FAILOVER_FW_ACCEPT_ALL_PATH = "/failoverfw/acceptall"

	FIREWALL_RULES_JOB_LOCK = "firewall_rules_update"

	ADDRESS_FAMILY_INET  = "INET"
	ADDRESS_FAMILY_INET6 = "INET6"

	// iptables-restore is quick; anything longer than this means the
	// tool is wedged and the operation must fail rather than hang
	restoreTimeout = 60
)

var (
	v4RulesPath = "/data/v4-fw.rules"
	v6RulesPath = "/data/v6-fw.rules"
)

type adminAccess struct {
	SshPort      int `json:"sshPort"`
	WebUiPort    int `json:"webUiPort"`
	WebUiTlsPort int `json:"webUiTlsPort"`
}

type generateRulesCmd struct {
	Drop  bool         `json:"drop"`
	Admin adminAccess  `json:"admin"`
	Vips  []vipAddress `json:"vips"`
}

type fwOpRsp struct {
	Applied bool `json:"applied"`
}

func currentAdminAccess() adminAccess {
	return adminAccess{
		SshPort:      utils.GetSshPortFromBootInfo(),
		WebUiPort:    utils.GetWebUiPortFromBootInfo(),
		WebUiTlsPort: utils.GetWebUiTlsPortFromBootInfo(),
	}
}

// generateRules builds the iptables and ip6tables rulesets. Pure and
// deterministic; identical input always yields identical lines.
//
// NOTE:
//
//	ssh and web UI traffic is always allowed.
func generateRules(cmd *generateRulesCmd) (v4rules, v6rules []string) {
	// rulesets always start with these lines and their positions matter:
	// the table marker, then the three default policy chains
	header := []string{
		"*filter",
		":INPUT ACCEPT [0:0]",
		":FORWARD ACCEPT [0:0]",
		":OUTPUT ACCEPT [0:0]",
	}
	v4rules = append(v4rules, header...)
	v6rules = append(v6rules, header...)

	if cmd.Drop {
		// admin access must keep working over whichever family the
		// operator comes in on, so the accepts go to both rulesets
		// and always precede the drops
		for _, port := range []int{cmd.Admin.SshPort, cmd.Admin.WebUiPort, cmd.Admin.WebUiTlsPort} {
			accept := fmt.Sprintf("-A INPUT -p tcp -m tcp --dport %d -j ACCEPT", port)
			v4rules = append(v4rules, accept)
			v6rules = append(v6rules, accept)
		}

		// only block the VIPs: MPIO storage traffic may ride on the
		// fixed per-node addresses of each controller and must keep
		// flowing while failover traffic to VIPs is suppressed
		for _, vip := range cmd.Vips {
			switch vip.Type {
			case ADDRESS_FAMILY_INET:
				v4rules = append(v4rules, fmt.Sprintf("-A INPUT -d %s/32 -j DROP", vip.Address))
			case ADDRESS_FAMILY_INET6:
				v6rules = append(v6rules, fmt.Sprintf("-A INPUT -d %s/128 -j DROP", vip.Address))
			}
		}
	}

	// the final line must be COMMIT
	v4rules = append(v4rules, "COMMIT")
	v6rules = append(v6rules, "COMMIT")

	return v4rules, v6rules
}

func writeRuleFile(path string, rules []string) error {
	if err := utils.MkdirForFile(path, 0755); err != nil {
		return errors.Wrapf(err, "failed writing %s", path)
	}

	content := strings.Join(rules, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return errors.Wrapf(err, "failed writing %s", path)
	}

	return nil
}

// writeRuleFiles persists both rulesets, fully replacing the previous
// files. A failure on either family aborts the whole sequence; the rules
// must never be activated from files that were not completely rewritten.
func writeRuleFiles(v4rules, v6rules []string) error {
	if err := writeRuleFile(v4RulesPath, v4rules); err != nil {
		return err
	}

	return writeRuleFile(v6RulesPath, v6rules)
}

type restoreToolArgs struct {
	Tool      string
	RulesFile string
}

// runRestoreCommand executes one table reload; unit tests swap it out
// for a fake executor.
var runRestoreCommand = func(args restoreToolArgs) (retCode int, stderr string, err error) {
	bash := utils.Bash{
		Command:   "{{.Tool}} < {{.RulesFile}}",
		Arguments: structs.Map(args),
		Sudo:      true,
		Timeout:   restoreTimeout,
	}

	ret, _, se, err := bash.RunWithReturn()
	return ret, se, err
}

// restoreRuleFiles loads the persisted files into the live kernel tables,
// one reload per family. The two reloads are independent: a v4 failure
// does not stop the v6 attempt, but every failure is reported. The stderr
// of a failed tool is decoded permissively so a diagnostic with garbage
// bytes cannot itself break the error path.
func restoreRuleFiles() error {
	var failures []string

	for _, args := range []restoreToolArgs{
		{Tool: "iptables-restore", RulesFile: v4RulesPath},
		{Tool: "ip6tables-restore", RulesFile: v6RulesPath},
	} {
		ret, se, err := runRestoreCommand(args)
		if err != nil {
			failures = append(failures, fmt.Sprintf("failed restoring firewall rules from %s: %s", args.RulesFile, err))
			continue
		}

		if ret != 0 {
			failures = append(failures, fmt.Sprintf("failed restoring firewall rules from %s: %s",
				args.RulesFile, strings.ToValidUTF8(se, "�")))
		}
	}

	if len(failures) != 0 {
		return errors.New(strings.Join(failures, "; "))
	}

	return nil
}

// applyFirewallRules is the whole generate -> write -> activate sequence.
// Callers must hold the firewall job lock. Returns applied=false without
// error when the node carries no failover license.
func applyFirewallRules(drop bool) (applied bool, err error) {
	if !utils.IsFailoverLicensed() {
		log.Debugf("failover is not licensed on this node, firewall state left untouched")
		return false, nil
	}

	cmd := &generateRulesCmd{Drop: drop, Admin: currentAdminAccess()}
	if drop {
		vips, err := discoverVips()
		if err != nil {
			return false, err
		}

		if len(vips) == 0 {
			return false, errors.New("no VIP addresses detected on system")
		}

		cmd.Vips = vips
	}

	v4rules, v6rules := generateRules(cmd)

	if err := writeRuleFiles(v4rules, v6rules); err != nil {
		fwMetrics.recordFailure("write")
		return false, err
	}

	if err := restoreRuleFiles(); err != nil {
		fwMetrics.recordFailure("activate")
		return false, err
	}

	fwMetrics.recordApply(drop)
	return true, nil
}

// dropAllHandler drops (silently) all v4/v6 inbound traffic destined for
// the VIP addresses of the controller pair.
//
// NOTE:
//
//	do not call this unless you know what you are doing, it can cause
//	a service disruption.
func dropAllHandler(ctx *server.CommandContext) interface{} {
	applied, err := applyFirewallRules(true)
	utils.PanicOnError(err)

	return fwOpRsp{Applied: applied}
}

// acceptAllHandler reopens all v4/v6 inbound traffic.
func acceptAllHandler(ctx *server.CommandContext) interface{} {
	applied, err := applyFirewallRules(false)
	utils.PanicOnError(err)

	return fwOpRsp{Applied: applied}
}

func FirewallEntryPoint() {
	RegisterPrometheusCollector(fwMetrics)
	server.RegisterAsyncCommandHandler(FAILOVER_FW_DROP_ALL_PATH,
		server.JobLock(FIREWALL_RULES_JOB_LOCK, dropAllHandler))
	server.RegisterAsyncCommandHandler(FAILOVER_FW_ACCEPT_ALL_PATH,
		server.JobLock(FIREWALL_RULES_JOB_LOCK, acceptAllHandler))
}
