package core

import "strings"

// Target is a pointing target: a description string understood by the
// antenna and backend devices, plus a human-readable name.
type Target struct {
	Description string
	Name        string
}

// NewTarget resolves the preferred name of a target description.
func NewTarget(description string) Target {
	description = strings.TrimSpace(description)
	return Target{Description: description, Name: PreferredName(description)}
}

func (t Target) String() string { return t.Name }

// PreferredName extracts the display name from a target description. The
// first comma-separated field holds a '|'-delimited name list; the starred
// entry wins, otherwise the first. Coordinate-only targets ("azel", "radec")
// are named by their system, and xephem targets by the first name of the
// trailing edb record (with '~' standing in for ',').
func PreferredName(description string) string {
	fields := strings.Split(description, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	names := strings.Split(fields[0], "|")
	for i := range names {
		names[i] = strings.TrimSpace(names[i])
	}
	firstWord := strings.Split(names[0], " ")[0]
	switch firstWord {
	case "azel", "radec":
		return firstWord
	case "xephem":
		edb := strings.ReplaceAll(fields[len(fields)-1], "~", ",")
		nameField, _, _ := strings.Cut(edb, ",")
		return strings.TrimSpace(strings.Split(nameField, "|")[0])
	}
	for _, n := range names {
		if strings.HasPrefix(n, "*") {
			return n[1:]
		}
	}
	return names[0]
}
