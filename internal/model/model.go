// Package model defines the entities extracted from groupware pages and
// their deterministic document identifiers.
package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Document type tags stored alongside every document.
const (
	TypePage     = "Page"
	TypeGroup    = "Group"
	TypeProtocol = "Protocol"
	TypeDecision = "Decision"
)

// decisionIDTitleLen is how many leading characters of the title (or text)
// participate in the decision id. Decision text is the identity: changed
// wording yields a new id rather than an in-place update.
const decisionIDTitleLen = 20

// Meta carries the fields every stored document has. The store maintains
// ID and Rev; entities embed Meta and never touch Rev themselves.
type Meta struct {
	ID        string `json:"id,omitempty"`
	Rev       int64  `json:"rev,omitempty"`
	UpdatedAt int64  `json:"updated_at,omitempty"`
}

func (m *Meta) DocID() string         { return m.ID }
func (m *Meta) SetDocID(id string)    { m.ID = id }
func (m *Meta) DocRev() int64         { return m.Rev }
func (m *Meta) SetDocRev(rev int64)   { m.Rev = rev }
func (m *Meta) SetUpdatedAt(ts int64) { m.UpdatedAt = ts }

// PageSubtype classifies what a page's content represents.
type PageSubtype string

const (
	SubtypeNone     PageSubtype = ""
	SubtypeGroup    PageSubtype = "group"
	SubtypeProtocol PageSubtype = "protocol"
)

// OCSPage is the subset of the groupware page listing we keep.
type OCSPage struct {
	ID             int    `json:"id"`
	Title          string `json:"title"`
	Slug           string `json:"slug,omitempty"`
	Emoji          string `json:"emoji,omitempty"`
	Timestamp      int64  `json:"timestamp,omitempty"`
	FileName       string `json:"fileName,omitempty"`
	FilePath       string `json:"filePath,omitempty"`
	CollectivePath string `json:"collectivePath,omitempty"`
	LastUserID     string `json:"lastUserId,omitempty"`
}

// Page is a stored groupware document together with its markdown content.
type Page struct {
	Meta

	Collective int         `json:"collective"`
	OCS        OCSPage     `json:"ocs"`
	Content    string      `json:"content,omitempty"`
	Subtype    PageSubtype `json:"subtype,omitempty"`
}

func (p *Page) DocType() string { return TypePage }

func (p *Page) BuildID() (string, error) {
	if p.OCS.ID == 0 {
		return "", fmt.Errorf("page has no numeric id")
	}
	return PageID(p.Collective, p.OCS.ID), nil
}

// PageID builds the deterministic page document id. It is recomputed from
// the collective namespace and numeric id, never stored independently.
func PageID(collective, pageID int) string {
	return fmt.Sprintf("%s:%d:%d", TypePage, collective, pageID)
}

func (p *Page) Title() string { return p.OCS.Title }

// IsReadme reports whether the page is a folder landing page.
func (p *Page) IsReadme() bool {
	return strings.EqualFold(p.OCS.FileName, "readme.md")
}

// Group is an organizational unit parsed from a group page.
type Group struct {
	Meta

	Name         string   `json:"name"`
	PageID       int      `json:"page_id"`
	ParentGroup  string   `json:"parent_group,omitempty"`
	Emoji        string   `json:"emoji,omitempty"`
	Coordination []string `json:"coordination"`
	Delegate     []string `json:"delegate"`
	Members      []string `json:"members"`
	ShortNames   []string `json:"short_names"`
}

func (g *Group) DocType() string { return TypeGroup }

func (g *Group) BuildID() (string, error) {
	if g.PageID == 0 {
		return "", fmt.Errorf("group has no owning page id")
	}
	return GroupID(g.PageID), nil
}

func GroupID(pageID int) string {
	return fmt.Sprintf("%s:%d", TypeGroup, pageID)
}

// AllMembers returns the sorted union of coordination, delegates and members.
func (g *Group) AllMembers() []string {
	return sortedUnion(g.Coordination, g.Delegate, g.Members)
}

// HasShortName reports whether name matches one of the group's short-name
// aliases, case-insensitive.
func (g *Group) HasShortName(name string) bool {
	for _, sn := range g.ShortNames {
		if strings.EqualFold(sn, name) {
			return true
		}
	}
	return false
}

// Protocol is the metadata of one meeting record.
type Protocol struct {
	Meta

	PageID       int      `json:"page_id"`
	GroupID      string   `json:"group_id,omitempty"`
	Date         string   `json:"date"`
	ModeratedBy  []string `json:"moderated_by"`
	ProtocolBy   []string `json:"protocol_by"`
	Participants []string `json:"participants"`
	AISummary    string   `json:"ai_summary,omitempty"`
	Processed    bool     `json:"summary_posted,omitempty"`
}

func (p *Protocol) DocType() string { return TypeProtocol }

func (p *Protocol) BuildID() (string, error) {
	if p.PageID == 0 {
		return "", fmt.Errorf("protocol has no owning page id")
	}
	return ProtocolID(p.PageID), nil
}

func ProtocolID(pageID int) string {
	return fmt.Sprintf("%s:%d", TypeProtocol, pageID)
}

// DateObj parses the protocol's date. The date string must start with a
// YYYY-MM-DD prefix to be valid.
func (p *Protocol) DateObj() (time.Time, bool) {
	return ParseProtocolDate(p.Date)
}

// ParseProtocolDate parses the leading YYYY-MM-DD of a date string.
func ParseProtocolDate(s string) (time.Time, bool) {
	first, _, _ := strings.Cut(strings.TrimSpace(s), " ")
	t, err := time.Parse("2006-01-02", first)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ValidProtocolTitle reports whether a page title carries a protocol date
// prefix ("YYYY-MM-DD Group Name").
func ValidProtocolTitle(title string) bool {
	datePart, _, found := strings.Cut(title, " ")
	if !found {
		return false
	}
	_, err := time.Parse("2006-01-02", datePart)
	return err == nil
}

// Decision is one formally recorded decision extracted from a protocol.
type Decision struct {
	Meta

	Title        string `json:"title"`
	Text         string `json:"text,omitempty"`
	Date         string `json:"date"`
	PageID       int    `json:"page_id"`
	GroupID      string `json:"group_id,omitempty"`
	GroupName    string `json:"group_name,omitempty"`
	ValidUntil   string `json:"valid_until,omitempty"`
	Objections   string `json:"objections,omitempty"`
	ExternalLink string `json:"external_link,omitempty"`
}

func (d *Decision) DocType() string { return TypeDecision }

func (d *Decision) BuildID() (string, error) {
	if d.Title == "" && d.Text == "" {
		return "", fmt.Errorf("decision needs a title or text to build an id")
	}
	ident := d.Title
	if ident == "" {
		ident = d.Text
	}
	if runes := []rune(ident); len(runes) > decisionIDTitleLen {
		ident = string(runes[:decisionIDTitleLen])
	}
	return fmt.Sprintf("%s:%d:%s", TypeDecision, d.PageID, ident), nil
}

func sortedUnion(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
