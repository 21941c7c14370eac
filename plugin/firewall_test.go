package plugin

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/coralstor/hafw/server"
	"github.com/coralstor/hafw/utils"

	. "github.com/onsi/ginkgo"
	"github.com/onsi/gomega"
)

type recordedRestore struct {
	mu    sync.Mutex
	calls []restoreToolArgs
}

func (r *recordedRestore) record(args restoreToolArgs) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, args)
}

func (r *recordedRestore) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

var _ = Describe("firewall_test", func() {
	var (
		origV4Path  string
		origV6Path  string
		origRestore func(restoreToolArgs) (int, string, error)
		origVips    func() ([]vipAddress, error)
	)

	admin := adminAccess{SshPort: 22, WebUiPort: 80, WebUiTlsPort: 443}

	BeforeEach(func() {
		origV4Path = v4RulesPath
		origV6Path = v6RulesPath
		origRestore = runRestoreCommand
		origVips = discoverVips

		dir, err := os.MkdirTemp(utils.GetAgentRootPath(), "fwrules")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		v4RulesPath = filepath.Join(dir, "v4-fw.rules")
		v6RulesPath = filepath.Join(dir, "v6-fw.rules")

		utils.BootstrapInfo["failoverLicensed"] = true
	})

	AfterEach(func() {
		v4RulesPath = origV4Path
		v6RulesPath = origV6Path
		runRestoreCommand = origRestore
		discoverVips = origVips
		delete(utils.BootstrapInfo, "failoverLicensed")
	})

	It("generates drop rules for a v4 VIP with admin accepts first", func() {
		cmd := &generateRulesCmd{
			Drop:  true,
			Admin: admin,
			Vips:  []vipAddress{{Type: ADDRESS_FAMILY_INET, Address: "10.0.0.5"}},
		}

		v4, v6 := generateRules(cmd)

		gomega.Expect(v4).To(gomega.Equal([]string{
			"*filter",
			":INPUT ACCEPT [0:0]",
			":FORWARD ACCEPT [0:0]",
			":OUTPUT ACCEPT [0:0]",
			"-A INPUT -p tcp -m tcp --dport 22 -j ACCEPT",
			"-A INPUT -p tcp -m tcp --dport 80 -j ACCEPT",
			"-A INPUT -p tcp -m tcp --dport 443 -j ACCEPT",
			"-A INPUT -d 10.0.0.5/32 -j DROP",
			"COMMIT",
		}))

		gomega.Expect(v6).To(gomega.Equal([]string{
			"*filter",
			":INPUT ACCEPT [0:0]",
			":FORWARD ACCEPT [0:0]",
			":OUTPUT ACCEPT [0:0]",
			"-A INPUT -p tcp -m tcp --dport 22 -j ACCEPT",
			"-A INPUT -p tcp -m tcp --dport 80 -j ACCEPT",
			"-A INPUT -p tcp -m tcp --dport 443 -j ACCEPT",
			"COMMIT",
		}))
	})

	It("generates bare accept-all rulesets and ignores the VIP list", func() {
		cmd := &generateRulesCmd{
			Drop:  false,
			Admin: admin,
			Vips:  []vipAddress{{Type: ADDRESS_FAMILY_INET, Address: "10.0.0.5"}},
		}

		v4, v6 := generateRules(cmd)

		expected := []string{
			"*filter",
			":INPUT ACCEPT [0:0]",
			":FORWARD ACCEPT [0:0]",
			":OUTPUT ACCEPT [0:0]",
			"COMMIT",
		}
		gomega.Expect(v4).To(gomega.Equal(expected))
		gomega.Expect(v6).To(gomega.Equal(expected))
	})

	It("routes each VIP to its family ruleset and skips unknown families", func() {
		cmd := &generateRulesCmd{
			Drop:  true,
			Admin: admin,
			Vips: []vipAddress{
				{Type: ADDRESS_FAMILY_INET, Address: "10.0.0.5"},
				{Type: ADDRESS_FAMILY_INET6, Address: "2001:db8::5"},
				{Type: "BOGUS", Address: "10.0.0.6"},
			},
		}

		v4, v6 := generateRules(cmd)

		gomega.Expect(v4).To(gomega.ContainElement("-A INPUT -d 10.0.0.5/32 -j DROP"))
		gomega.Expect(v4).NotTo(gomega.ContainElement("-A INPUT -d 2001:db8::5/128 -j DROP"))
		gomega.Expect(v6).To(gomega.ContainElement("-A INPUT -d 2001:db8::5/128 -j DROP"))
		gomega.Expect(strings.Join(v4, "\n")).NotTo(gomega.ContainSubstring("10.0.0.6"))
		gomega.Expect(strings.Join(v6, "\n")).NotTo(gomega.ContainSubstring("10.0.0.6"))

		for _, rules := range [][]string{v4, v6} {
			gomega.Expect(rules[0]).To(gomega.Equal("*filter"))
			gomega.Expect(rules[len(rules)-1]).To(gomega.Equal("COMMIT"))

			lastAccept, firstDrop := -1, len(rules)
			for i, line := range rules {
				if strings.HasSuffix(line, "-j ACCEPT") && lastAccept < i {
					lastAccept = i
				}
				if strings.HasSuffix(line, "-j DROP") && i < firstDrop {
					firstDrop = i
				}
			}
			gomega.Expect(lastAccept).To(gomega.BeNumerically("<", firstDrop))
		}
	})

	It("generates byte identical rulesets for identical input", func() {
		cmd := &generateRulesCmd{
			Drop:  true,
			Admin: admin,
			Vips: []vipAddress{
				{Type: ADDRESS_FAMILY_INET, Address: "10.0.0.5"},
				{Type: ADDRESS_FAMILY_INET6, Address: "2001:db8::5"},
			},
		}

		v4a, v6a := generateRules(cmd)
		v4b, v6b := generateRules(cmd)

		gomega.Expect(v4a).To(gomega.Equal(v4b))
		gomega.Expect(v6a).To(gomega.Equal(v6b))
	})

	It("persists both rulesets newline terminated and fully replaced", func() {
		err := writeRuleFiles([]string{"*filter", "COMMIT"}, []string{"*filter", "old", "COMMIT"})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		err = writeRuleFiles([]string{"*filter", "COMMIT"}, []string{"*filter", "COMMIT"})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		v6, err := os.ReadFile(v6RulesPath)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(string(v6)).To(gomega.Equal("*filter\nCOMMIT\n"))

		v4, err := os.ReadFile(v4RulesPath)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(string(v4)).To(gomega.Equal("*filter\nCOMMIT\n"))
	})

	It("does not activate anything when the v6 file cannot be written", func() {
		blocked := filepath.Join(filepath.Dir(v6RulesPath), "blocked")
		gomega.Expect(os.WriteFile(blocked, []byte{}, 0644)).To(gomega.Succeed())
		v6RulesPath = filepath.Join(blocked, "v6-fw.rules")

		rec := &recordedRestore{}
		runRestoreCommand = func(args restoreToolArgs) (int, string, error) {
			rec.record(args)
			return 0, "", nil
		}
		discoverVips = func() ([]vipAddress, error) {
			return []vipAddress{{Type: ADDRESS_FAMILY_INET, Address: "10.0.0.5"}}, nil
		}

		applied, err := applyFirewallRules(true)
		gomega.Expect(err).To(gomega.HaveOccurred())
		gomega.Expect(err.Error()).To(gomega.ContainSubstring(v6RulesPath))
		gomega.Expect(applied).To(gomega.BeFalse())
		gomega.Expect(rec.count()).To(gomega.Equal(0))
	})

	It("still attempts the v6 reload when the v4 reload fails", func() {
		rec := &recordedRestore{}
		runRestoreCommand = func(args restoreToolArgs) (int, string, error) {
			rec.record(args)
			if args.Tool == "iptables-restore" {
				return 2, "iptables-restore: line 5 failed", nil
			}
			return 0, "", nil
		}

		err := restoreRuleFiles()
		gomega.Expect(err).To(gomega.HaveOccurred())
		gomega.Expect(err.Error()).To(gomega.ContainSubstring(v4RulesPath))
		gomega.Expect(err.Error()).To(gomega.ContainSubstring("line 5 failed"))
		gomega.Expect(rec.count()).To(gomega.Equal(2))
		gomega.Expect(rec.calls[0].Tool).To(gomega.Equal("iptables-restore"))
		gomega.Expect(rec.calls[1].Tool).To(gomega.Equal("ip6tables-restore"))
	})

	It("reports both families when both reloads fail", func() {
		runRestoreCommand = func(args restoreToolArgs) (int, string, error) {
			return 1, "broken", nil
		}

		err := restoreRuleFiles()
		gomega.Expect(err).To(gomega.HaveOccurred())
		gomega.Expect(err.Error()).To(gomega.ContainSubstring(v4RulesPath))
		gomega.Expect(err.Error()).To(gomega.ContainSubstring(v6RulesPath))
	})

	It("tolerates undecodable bytes in reload diagnostics", func() {
		runRestoreCommand = func(args restoreToolArgs) (int, string, error) {
			return 1, "bad rule \xff\xfe near line 3", nil
		}

		err := restoreRuleFiles()
		gomega.Expect(err).To(gomega.HaveOccurred())
		gomega.Expect(utf8.ValidString(err.Error())).To(gomega.BeTrue())
		gomega.Expect(err.Error()).To(gomega.ContainSubstring("near line 3"))
	})

	It("does nothing on an unlicensed node", func() {
		utils.BootstrapInfo["failoverLicensed"] = false

		rec := &recordedRestore{}
		runRestoreCommand = func(args restoreToolArgs) (int, string, error) {
			rec.record(args)
			return 0, "", nil
		}

		applied, err := applyFirewallRules(true)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(applied).To(gomega.BeFalse())
		gomega.Expect(rec.count()).To(gomega.Equal(0))
	})

	It("refuses to drop traffic when no VIPs are found", func() {
		discoverVips = func() ([]vipAddress, error) {
			return nil, nil
		}

		applied, err := applyFirewallRules(true)
		gomega.Expect(err).To(gomega.HaveOccurred())
		gomega.Expect(err.Error()).To(gomega.ContainSubstring("no VIP addresses detected"))
		gomega.Expect(applied).To(gomega.BeFalse())
	})

	It("applies accept-all end to end without consulting the VIP list", func() {
		rec := &recordedRestore{}
		runRestoreCommand = func(args restoreToolArgs) (int, string, error) {
			rec.record(args)
			return 0, "", nil
		}
		discoverVips = func() ([]vipAddress, error) {
			panic("accept-all must not discover VIPs")
		}

		applied, err := applyFirewallRules(false)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(applied).To(gomega.BeTrue())
		gomega.Expect(rec.count()).To(gomega.Equal(2))

		v4, err := os.ReadFile(v4RulesPath)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(string(v4)).To(gomega.Equal("*filter\n:INPUT ACCEPT [0:0]\n:FORWARD ACCEPT [0:0]\n:OUTPUT ACCEPT [0:0]\nCOMMIT\n"))
	})

	It("serializes concurrent firewall operations behind the job lock", func() {
		var mu sync.Mutex
		var events []string

		handler := server.JobLock(FIREWALL_RULES_JOB_LOCK, func(ctx *server.CommandContext) interface{} {
			mu.Lock()
			events = append(events, "enter")
			mu.Unlock()

			time.Sleep(50 * time.Millisecond)

			mu.Lock()
			events = append(events, "exit")
			mu.Unlock()
			return nil
		})

		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				handler(nil)
			}()
		}
		wg.Wait()

		gomega.Expect(events).To(gomega.Equal([]string{"enter", "exit", "enter", "exit"}))
	})
})
