// Package hosts owns the registry of classroom machines and their groups.
package hosts

import "strings"

// OS identifies the operating-system family of a host, which decides the
// remote-execution strategy used for it.
type OS string

// Supported operating-system families.
const (
	OSWindows OS = "windows"
	OSLinux   OS = "linux"
	OSDarwin  OS = "darwin"
)

// ParseOS normalizes a raw OS string to a known family. Unknown values are
// kept verbatim so the registry can still hold them; such hosts only become
// schedulable once a strategy claims their OS.
func ParseOS(raw string) OS {
	switch strings.ToLower(raw) {
	case "windows", "win", "win32":
		return OSWindows
	case "linux":
		return OSLinux
	case "darwin", "macos", "mac":
		return OSDarwin
	default:
		return OS(raw)
	}
}

// Host is one target machine in the classroom fleet.
type Host struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Address string   `json:"address"`
	OS      OS       `json:"os"`
	Tags    []string `json:"tags,omitempty"`
	Enabled bool     `json:"enabled"`
	Groups  []string `json:"groups,omitempty"`
}

// HasTag reports whether the host carries the given tag.
func (h Host) HasTag(tag string) bool {
	for _, t := range h.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Group is a named set of hosts, e.g. one physical classroom row.
type Group struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	HostIDs []string `json:"hostIds"`
	Tags    []string `json:"tags,omitempty"`
}

// Snapshot is a point-in-time copy of the registry contents.
type Snapshot struct {
	Hosts  []Host  `json:"hosts"`
	Groups []Group `json:"groups"`
}

// ImportResult summarizes a tabular import run.
type ImportResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}
