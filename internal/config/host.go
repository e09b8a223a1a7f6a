package config

import (
	"fmt"
	"os"
	"runtime"
)

// Host describes the machine envpilot runs on. It is detected once at
// startup and handed to every component, which never consult the process
// environment themselves.
type Host struct {
	OS       string // GOOS value
	Arch     string // GOARCH value
	Hostname string
	WorkDir  string
	HomeDir  string
	Shell    string // $SHELL, used for activation on POSIX systems
	// Environ is the process environment handed to activated shells
	Environ []string
}

// DetectHost reads the current process state into a Host
func DetectHost() (Host, error) {
	wd, err := os.Getwd()
	if err != nil {
		return Host{}, fmt.Errorf("failed to get working directory: %w", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Host{}, fmt.Errorf("failed to get home directory: %w", err)
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return Host{
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		Hostname: hostname,
		WorkDir:  wd,
		HomeDir:  home,
		Shell:    os.Getenv("SHELL"),
		Environ:  os.Environ(),
	}, nil
}

// PythonPlatform returns the value Python reports as sys.platform
func (h Host) PythonPlatform() string {
	if h.OS == "windows" {
		return "win32"
	}
	return h.OS
}

// Machine returns the value Python reports as platform.machine()
func (h Host) Machine() string {
	switch h.Arch {
	case "amd64":
		if h.OS == "windows" {
			return "AMD64"
		}
		return "x86_64"
	case "386":
		if h.OS == "windows" {
			return "x86"
		}
		return "i686"
	case "arm64":
		if h.OS == "linux" {
			return "aarch64"
		}
		if h.OS == "windows" {
			return "ARM64"
		}
		return "arm64"
	default:
		return h.Arch
	}
}

// DefaultShell returns the shell used for activation when $SHELL is unset
func (h Host) DefaultShell() string {
	if h.Shell != "" {
		return h.Shell
	}
	return "/bin/bash"
}
