package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Organisation holds the keyword configuration that drives page parsing.
// Keyword sets are matched case-insensitively against the first word of a
// line; the sets for one page kind must not overlap. It is loaded from a
// YAML file so organisations can localize the vocabulary without code
// changes, and injected explicitly into the parser components.
type Organisation struct {
	// GroupPrefixes are the upper-case name prefixes that mark a folder
	// segment as a group page ("AG Gardening" etc).
	GroupPrefixes []string `yaml:"group_prefixes"`
	// ExtraGroups are full upper-case names accepted without a prefix.
	ExtraGroups []string `yaml:"extra_groups"`

	CoordinationKeywords []string `yaml:"coordination_keywords"`
	DelegateKeywords     []string `yaml:"delegate_keywords"`
	MemberKeywords       []string `yaml:"member_keywords"`
	ShortNameKeywords    []string `yaml:"shortname_keywords"`

	ModerationKeywords  []string `yaml:"moderation_keywords"`
	ProtocolKeywords    []string `yaml:"protocol_keywords"`
	ParticipantKeywords []string `yaml:"participant_keywords"`

	// ProtocolFolderKeywords are folder names whose children are protocols.
	ProtocolFolderKeywords []string `yaml:"protocol_folder_keywords"`

	DecisionTitleKeywords      []string `yaml:"decision_title_keywords"`
	DecisionValidUntilKeywords []string `yaml:"decision_valid_until_keywords"`
	DecisionObjectionKeywords  []string `yaml:"decision_objection_keywords"`
	// DecisionExampleTitle filters template placeholder decisions: blocks
	// whose title contains this sentinel are discarded.
	DecisionExampleTitle string `yaml:"decision_example_title"`
}

// DefaultOrganisation returns the stock German/English vocabulary.
func DefaultOrganisation() Organisation {
	return Organisation{
		GroupPrefixes: []string{"AG", "UG", "PG"},
		ExtraGroups:   []string{"PLENUM", "VORSTAND"},

		CoordinationKeywords: []string{
			"koordination", "koordinator", "koordinatorin",
			"sprecher", "sprecherin", "coordination",
		},
		DelegateKeywords: []string{"delegierte", "delegierter", "delegate", "delegates"},
		MemberKeywords:   []string{"mitglied", "mitglieder", "member", "members"},
		ShortNameKeywords: []string{
			"kurznamen", "kurzname", "schlagwörter", "schlagworte", "shortnames", "tags",
		},

		ModerationKeywords:  []string{"moderation", "moderator", "moderatorin"},
		ProtocolKeywords:    []string{"protokoll", "protokollant", "protokollantin", "protocol"},
		ParticipantKeywords: []string{"teilnehmer", "teilnehmerin", "teilnehmende", "anwesend", "anwesende", "participants"},

		ProtocolFolderKeywords: []string{"protokolle", "protokoll", "protocols", "minutes"},

		DecisionTitleKeywords:      []string{"entscheidung", "decision", "beschluss"},
		DecisionValidUntilKeywords: []string{"gültig bis", "valid until", "befristet auf"},
		DecisionObjectionKeywords:  []string{"einwände", "einwand", "objections", "objection"},
		DecisionExampleTitle:       "Beispiel",
	}
}

// LoadOrganisation reads an Organisation from a YAML file. Fields missing
// from the file keep their defaults. An empty path returns the defaults.
func LoadOrganisation(path string) (Organisation, error) {
	org := DefaultOrganisation()
	if path == "" {
		return org, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Organisation{}, fmt.Errorf("read org config: %w", err)
	}
	if err := yaml.Unmarshal(data, &org); err != nil {
		return Organisation{}, fmt.Errorf("parse org config: %w", err)
	}
	return org, nil
}
