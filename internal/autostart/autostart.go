// Package autostart registers the pendrag daemon to start on login.
package autostart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"
)

// ErrUnsupported is returned on platforms without a login-start mechanism
var ErrUnsupported = errors.New("autostart: unsupported platform")

const macLaunchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
        <string>run</string>
        <string>--tray</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`

const xdgDesktopEntry = `[Desktop Entry]
Type=Application
Name=pendrag
Comment=Pen drag threshold daemon
Exec="{{.ExecutablePath}}" run --tray
Terminal=false
X-GNOME-Autostart-enabled=true
`

const macLabel = "com.pendrag.agent"

type entry struct {
	Label          string
	ExecutablePath string
}

// Enable enables auto-start on login
func Enable() error {
	path, tmpl, err := entryFile()
	if err != nil {
		return err
	}
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	return writeEntry(path, tmpl, entry{Label: macLabel, ExecutablePath: execPath})
}

// Disable disables auto-start on login
func Disable() error {
	path, _, err := entryFile()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsEnabled checks if auto-start is enabled
func IsEnabled() bool {
	path, _, err := entryFile()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Path returns the login entry file for this platform
func Path() (string, error) {
	path, _, err := entryFile()
	return path, err
}

func entryFile() (string, string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		return filepath.Join(home, "Library", "LaunchAgents", macLabel+".plist"), macLaunchAgentPlist, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		dir := os.Getenv("XDG_CONFIG_HOME")
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", "", err
			}
			dir = filepath.Join(home, ".config")
		}
		return filepath.Join(dir, "autostart", "pendrag.desktop"), xdgDesktopEntry, nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupported, runtime.GOOS)
	}
}

func writeEntry(path, text string, e entry) error {
	tmpl, err := template.New("entry").Parse(text)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tmpl.Execute(f, e); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
