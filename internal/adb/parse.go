package adb

import (
	"regexp"
	"sort"
	"strings"
)

var (
	// mCurrentFocus=Window{1a2b3c u0 com.package.name/com.package.Activity}
	focusPattern = regexp.MustCompile(`mCurrentFocus=Window\{\S+ \S+ ([^/\s}]+)/`)

	// mResumedActivity: ActivityRecord{4d5e6f u0 com.package.name/.Activity t12}
	resumedPattern = regexp.MustCompile(`mResumedActivity: .*? ([^/\s]+)/`)

	// PlaybackState {state=3, position=...}; 3 is PLAYING.
	playingPattern = regexp.MustCompile(`state=3(?:\D|$)`)
)

// ParseFocusedPackage extracts the focused package from "dumpsys window windows".
func ParseFocusedPackage(out string) (string, bool) {
	m := focusPattern.FindStringSubmatch(out)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseResumedPackage extracts the resumed package from "dumpsys activity activities".
func ParseResumedPackage(out string) (string, bool) {
	m := resumedPattern.FindStringSubmatch(out)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseMediaPlaying reports whether "dumpsys media_session" shows a playing session.
func ParseMediaPlaying(out string) bool {
	return playingPattern.MatchString(out)
}

// ParsePackageList parses "pm list packages" output: strips the "package:"
// prefix, drops blanks and duplicates, and sorts.
func ParsePackageList(out string) []string {
	seen := make(map[string]bool)
	var pkgs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimPrefix(line, "package:"))
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		pkgs = append(pkgs, line)
	}
	sort.Strings(pkgs)
	return pkgs
}

// IsUnauthorized reports whether adb output mentions an unauthorized device.
func IsUnauthorized(r Result) bool {
	return strings.Contains(strings.ToLower(r.Stdout+r.Stderr), "unauthorized")
}
