// Package parser turns freeform groupware markdown into typed entities:
// group membership, protocol metadata and recorded decisions. Matching is
// keyword-driven so organisations can localize the vocabulary.
package parser

import (
	"regexp"
	"sort"
	"strings"
)

// RoleSlot is one membership or participation category the line scanner
// can assign mentions to.
type RoleSlot int

const (
	RoleNone RoleSlot = iota
	RoleCoordination
	RoleDelegate
	RoleMember
	RoleModeration
	RoleProtocol
	RoleParticipant
)

// mentionPattern matches the groupware mention syntax.
var mentionPattern = regexp.MustCompile(`mention://user/([A-Za-z0-9_.-]+)`)

// firstWordPattern extracts the first alphanumeric/hyphen token of a line,
// skipping markdown emphasis and list markers.
var firstWordPattern = regexp.MustCompile(`[\p{L}\p{N}_][\p{L}\p{N}_-]*`)

// RoleScan is the result of scanning one page body.
type RoleScan struct {
	Roles      map[RoleSlot][]string
	ShortNames []string
}

// RoleKeywords maps lowercase line-leading keywords to their role slot.
type RoleKeywords map[string]RoleSlot

// ScanOptions configures one scan run.
type ScanOptions struct {
	Keywords RoleKeywords
	// ShortNameKeywords enables short-name list parsing (group pages).
	ShortNameKeywords []string
	// StopAtBreak terminates scanning at a `---` rule or markdown heading
	// (protocol pages: everything below is discussion, not metadata).
	StopAtBreak bool
}

// ScanRoles classifies each line of content against the keyword sets and
// collects mentions into the active role slot.
//
// The state machine: a keyword line activates its slot (and is harvested
// for mentions on the same line); a line with mentions feeds the active
// slot; any other non-blank line resets the slot, so free-text paragraphs
// never bleed into the next keyword section.
func ScanRoles(content string, opts ScanOptions) RoleScan {
	result := RoleScan{Roles: make(map[RoleSlot][]string)}
	shortNameSet := make(map[string]bool, len(opts.ShortNameKeywords))
	for _, kw := range opts.ShortNameKeywords {
		shortNameSet[strings.ToLower(kw)] = true
	}

	current := RoleNone
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if opts.StopAtBreak && (trimmed == "---" || strings.HasPrefix(trimmed, "#")) {
			break
		}

		match := firstWordPattern.FindString(line)
		if match == "" {
			continue
		}
		firstWord := strings.ToLower(match)

		if slot, ok := opts.Keywords[firstWord]; ok {
			current = slot
		} else if shortNameSet[firstWord] {
			result.ShortNames = append(result.ShortNames, parseShortNames(line)...)
			continue
		}

		mentions := extractMentions(line)
		switch {
		case len(mentions) > 0 && current != RoleNone:
			result.Roles[current] = append(result.Roles[current], mentions...)
			sort.Strings(result.Roles[current])
		case trimmed != "":
			if _, isKeyword := opts.Keywords[firstWord]; !isKeyword {
				current = RoleNone
			}
		}
	}

	return result
}

// extractMentions returns all mention identifiers on a line.
func extractMentions(line string) []string {
	var users []string
	for _, m := range mentionPattern.FindAllStringSubmatch(line, -1) {
		users = append(users, m[1])
	}
	return users
}

// parseShortNames parses the comma-separated list after the first colon,
// lowercased and trimmed.
func parseShortNames(line string) []string {
	_, rest, found := strings.Cut(line, ":")
	if !found {
		return nil
	}
	var names []string
	for _, part := range strings.Split(rest, ",") {
		name := strings.ToLower(strings.TrimSpace(strings.Trim(strings.TrimSpace(part), "*_")))
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// subtract returns base sorted with every entry of the exclusion lists
// removed and duplicates dropped.
func subtract(base []string, exclude ...[]string) []string {
	drop := make(map[string]struct{})
	for _, list := range exclude {
		for _, v := range list {
			drop[v] = struct{}{}
		}
	}
	seen := make(map[string]struct{})
	out := []string{}
	for _, v := range base {
		if _, excluded := drop[v]; excluded {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
