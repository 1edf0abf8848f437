//go:build windows

package osutils

import (
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"
)

// IsAdmin checks if the current process has administrative privileges
func IsAdmin() bool {
	var token windows.Token
	h, _ := windows.GetCurrentProcess()
	if err := windows.OpenProcessToken(h, windows.TOKEN_QUERY, &token); err != nil {
		return false
	}
	defer token.Close()

	var sid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	member, err := token.IsMember(sid)
	if err != nil {
		return false
	}
	return member
}

// EnsureFirewallRule creates or repairs an inbound allow rule. Without
// admin rights it asks for UAC elevation.
func EnsureFirewallRule(rule FirewallRule) error {
	log.Printf("Firewall: Checking rule '%s' (%s %d)", rule.Name, rule.Protocol, rule.Port)

	output, err := exec.Command("netsh", "advfirewall", "firewall", "show", "rule", "name="+rule.Name).CombinedOutput()
	out := string(output)
	if err == nil && strings.Contains(out, rule.Name) {
		if strings.Contains(out, strconv.Itoa(rule.Port)) && strings.Contains(out, rule.Protocol) && strings.Contains(out, "Allow") {
			return nil
		}
		log.Printf("Firewall: Rule '%s' exists but does not match, updating", rule.Name)
	} else {
		log.Printf("Firewall: Rule '%s' not found, creating", rule.Name)
	}

	psCommand := rule.PowerShell()
	if !IsAdmin() {
		verbPtr, _ := syscall.UTF16PtrFromString("runas")
		exePtr, _ := syscall.UTF16PtrFromString("powershell.exe")
		argPtr, _ := syscall.UTF16PtrFromString(fmt.Sprintf("-NoProfile -WindowStyle Hidden -Command \"%s\"", psCommand))

		if err := windows.ShellExecute(0, verbPtr, exePtr, argPtr, nil, 0); err != nil {
			return fmt.Errorf("failed to launch elevated powershell: %w", err)
		}
		log.Println("Firewall: UAC prompt requested")
		return nil
	}

	if output, err := exec.Command("powershell", "-NoProfile", "-Command", psCommand).CombinedOutput(); err != nil {
		return fmt.Errorf("failed to create firewall rule: %w (output: %s)", err, string(output))
	}
	log.Printf("Firewall: Rule '%s' applied", rule.Name)
	return nil
}
