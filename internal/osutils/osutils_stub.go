//go:build !windows

package osutils

// IsAdmin is a stub for non-Windows platforms
func IsAdmin() bool {
	return false
}

// EnsureFirewallRule is a no-op; only Windows blocks inbound ports by default
func EnsureFirewallRule(rule FirewallRule) error {
	return nil
}
