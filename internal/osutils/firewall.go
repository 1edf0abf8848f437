// Package osutils holds platform integration that has no portable API.
package osutils

import (
	"fmt"
	"net"
	"strconv"

	"pendrag/internal/config"
)

// FirewallRule is one inbound allow rule the daemon needs
type FirewallRule struct {
	Name     string
	Protocol string // "TCP" or "UDP"
	Port     int
}

// FirewallRules lists the inbound ports opened by the configuration: the
// API port and the two UDP sockets producers and consumers talk to.
func FirewallRules(cfg config.Config) []FirewallRule {
	var rules []FirewallRule
	if cfg.API.Enabled {
		rules = append(rules, FirewallRule{Name: "pendrag API", Protocol: "TCP", Port: cfg.API.Port})
	}
	if port, ok := portOf(cfg.Network.IngestAddr); ok {
		rules = append(rules, FirewallRule{Name: "pendrag Ingest", Protocol: "UDP", Port: port})
	}
	if port, ok := portOf(cfg.Network.ForwardAddr); ok {
		rules = append(rules, FirewallRule{Name: "pendrag Forward", Protocol: "UDP", Port: port})
	}
	return rules
}

func portOf(addr string) (int, bool) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, false
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, false
	}
	return port, true
}

// PowerShell returns the command that replaces the rule with a fresh one
func (r FirewallRule) PowerShell() string {
	return fmt.Sprintf(
		"Remove-NetFirewallRule -DisplayName '%s' -ErrorAction SilentlyContinue; New-NetFirewallRule -DisplayName '%s' -Direction Inbound -LocalPort %d -Protocol %s -Action Allow -Profile Any",
		r.Name, r.Name, r.Port, r.Protocol,
	)
}
