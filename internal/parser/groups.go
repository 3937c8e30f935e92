package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/treibhausdonaufeld/nextcloud-bot/internal/config"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/model"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/store"
)

// ErrGroupNotDeterminable indicates that no path segment or title matched
// the configured group vocabulary. Callers treat it as non-fatal: the page
// itself is still saved, only the dependent update is skipped.
var ErrGroupNotDeterminable = errors.New("group not determinable")

// GroupResolver derives group names from folder paths and looks groups up
// by display name or short-name alias.
type GroupResolver struct {
	org   config.Organisation
	store *store.Store

	// groups memoizes the full group list for name lookups during one
	// sync cycle. Reset() invalidates it.
	groups []*model.Group
}

func NewGroupResolver(org config.Organisation, s *store.Store) *GroupResolver {
	return &GroupResolver{org: org, store: s}
}

// Reset drops the memoized group list. The sync engine calls this at the
// start of every cycle so renames are picked up.
func (r *GroupResolver) Reset() {
	r.groups = nil
}

// ValidName reports whether name is a plausible group name: it either
// starts with a configured prefix or is listed as an extra group.
func (r *GroupResolver) ValidName(name string) bool {
	upper := strings.ToUpper(name)
	for _, prefix := range r.org.GroupPrefixes {
		if strings.HasPrefix(upper, strings.ToUpper(prefix)) {
			return true
		}
	}
	for _, extra := range r.org.ExtraGroups {
		if upper == strings.ToUpper(extra) {
			return true
		}
	}
	return false
}

// ValidGroupNames returns the path segments that are valid group names,
// nearest to the leaf first. The first entry is a page's own group, the
// second its parent.
func (r *GroupResolver) ValidGroupNames(path string) []string {
	parts := strings.Split(path, "/")
	var names []string
	for i := len(parts) - 1; i >= 0; i-- {
		if r.ValidName(parts[i]) {
			names = append(names, parts[i])
		}
	}
	return names
}

// GetByName finds a group by display name, case-insensitive, falling back
// to short-name aliases.
func (r *GroupResolver) GetByName(ctx context.Context, name string) (*model.Group, error) {
	groups, err := r.loadGroups(ctx)
	if err != nil {
		return nil, err
	}

	for _, g := range groups {
		if strings.EqualFold(g.Name, name) {
			return g, nil
		}
	}
	for _, g := range groups {
		if g.HasShortName(name) {
			return g, nil
		}
	}
	return nil, fmt.Errorf("group %q: %w", name, ErrGroupNotDeterminable)
}

// GroupForPage resolves the group owning a page from its folder path.
func (r *GroupResolver) GroupForPage(ctx context.Context, page *model.Page) (*model.Group, error) {
	names := r.ValidGroupNames(page.OCS.FilePath)
	if len(names) == 0 {
		return nil, fmt.Errorf("page %d has no group path segment: %w", page.OCS.ID, ErrGroupNotDeterminable)
	}
	return r.GetByName(ctx, names[0])
}

func (r *GroupResolver) loadGroups(ctx context.Context) ([]*model.Group, error) {
	if r.groups != nil {
		return r.groups, nil
	}
	groups, err := store.Find[model.Group](ctx, r.store, store.Query{
		Type:  model.TypeGroup,
		Limit: 1000,
	})
	if err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	r.groups = groups
	return groups, nil
}

// GroupParser rebuilds a Group entity from its page content.
type GroupParser struct {
	org      config.Organisation
	store    *store.Store
	resolver *GroupResolver
	log      zerolog.Logger
}

func NewGroupParser(org config.Organisation, s *store.Store, resolver *GroupResolver, log zerolog.Logger) *GroupParser {
	return &GroupParser{
		org:      org,
		store:    s,
		resolver: resolver,
		log:      log.With().Str("component", "group-parser").Logger(),
	}
}

// keywords builds the first-word classification table for group pages.
func (p *GroupParser) keywords() RoleKeywords {
	kw := make(RoleKeywords)
	for _, k := range p.org.CoordinationKeywords {
		kw[strings.ToLower(k)] = RoleCoordination
	}
	for _, k := range p.org.DelegateKeywords {
		kw[strings.ToLower(k)] = RoleDelegate
	}
	for _, k := range p.org.MemberKeywords {
		kw[strings.ToLower(k)] = RoleMember
	}
	return kw
}

// UpdateFromPage parses the page content into the page's Group entity and
// saves it. The group's name and parent come from the folder path; role
// lists and short names come from the body.
func (p *GroupParser) UpdateFromPage(ctx context.Context, page *model.Page) (*model.Group, error) {
	names := p.resolver.ValidGroupNames(page.OCS.FilePath)
	if len(names) == 0 {
		return nil, fmt.Errorf("page %d: %w", page.OCS.ID, ErrGroupNotDeterminable)
	}

	group, err := store.Get[model.Group](ctx, p.store, model.GroupID(page.OCS.ID))
	if errors.Is(err, store.ErrNotFound) {
		group = &model.Group{PageID: page.OCS.ID}
	} else if err != nil {
		return nil, fmt.Errorf("load group for page %d: %w", page.OCS.ID, err)
	}

	group.Name = names[0]
	group.ParentGroup = ""
	if len(names) > 1 {
		group.ParentGroup = names[1]
	}
	group.Emoji = page.OCS.Emoji

	scan := ScanRoles(page.Content, ScanOptions{
		Keywords:          p.keywords(),
		ShortNameKeywords: p.org.ShortNameKeywords,
	})

	group.Coordination = sortedOrEmpty(scan.Roles[RoleCoordination])
	group.Delegate = sortedOrEmpty(scan.Roles[RoleDelegate])
	// Coordinators and delegates are never double-counted as plain members.
	group.Members = subtract(scan.Roles[RoleMember], group.Coordination, group.Delegate)
	group.ShortNames = sortedOrEmpty(scan.ShortNames)

	if err := p.store.Save(ctx, group); err != nil {
		return nil, err
	}
	p.log.Debug().Str("group", group.Name).Int("members", len(group.AllMembers())).Msg("group updated from page")
	return group, nil
}

func sortedOrEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return subtract(list)
}
