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

// ProtocolParser rebuilds a Protocol entity and its decisions from a
// protocol page.
type ProtocolParser struct {
	org       config.Organisation
	store     *store.Store
	resolver  *GroupResolver
	extractor *DecisionExtractor
	log       zerolog.Logger
}

func NewProtocolParser(org config.Organisation, s *store.Store, resolver *GroupResolver, extractor *DecisionExtractor, log zerolog.Logger) *ProtocolParser {
	return &ProtocolParser{
		org:       org,
		store:     s,
		resolver:  resolver,
		extractor: extractor,
		log:       log.With().Str("component", "protocol-parser").Logger(),
	}
}

// IsProtocolPage reports whether the page lives in a protocol folder:
// either the page itself sits in a folder named after a protocol keyword,
// or it is the README of such a folder.
func (p *ProtocolParser) IsProtocolPage(page *model.Page) bool {
	parts := strings.Split(page.OCS.FilePath, "/")
	if len(parts) < 2 {
		return false
	}

	folder := parts[len(parts)-1]
	if page.IsReadme() && len(parts) >= 2 {
		folder = parts[len(parts)-2]
	}
	folder = strings.ToLower(folder)

	for _, kw := range p.org.ProtocolFolderKeywords {
		if folder == strings.ToLower(kw) {
			return true
		}
	}
	return false
}

// keywords builds the first-word classification table for protocol pages.
func (p *ProtocolParser) keywords() RoleKeywords {
	kw := make(RoleKeywords)
	for _, k := range p.org.ModerationKeywords {
		kw[strings.ToLower(k)] = RoleModeration
	}
	for _, k := range p.org.ProtocolKeywords {
		kw[strings.ToLower(k)] = RoleProtocol
	}
	for _, k := range p.org.ParticipantKeywords {
		kw[strings.ToLower(k)] = RoleParticipant
	}
	return kw
}

// UpdateFromPage parses the page into its Protocol entity, re-extracts
// its decisions, and saves both. Group resolution failure is non-fatal:
// the protocol is saved without a group id.
func (p *ProtocolParser) UpdateFromPage(ctx context.Context, page *model.Page) (*model.Protocol, []*model.Decision, error) {
	protocol, err := store.Get[model.Protocol](ctx, p.store, model.ProtocolID(page.OCS.ID))
	if errors.Is(err, store.ErrNotFound) {
		protocol = &model.Protocol{PageID: page.OCS.ID}
	} else if err != nil {
		return nil, nil, fmt.Errorf("load protocol for page %d: %w", page.OCS.ID, err)
	}

	title := page.Title()
	if model.ValidProtocolTitle(title) {
		datePart, _, _ := strings.Cut(title, " ")
		protocol.Date = datePart
	}

	groupName := p.resolveGroup(ctx, page, protocol)

	scan := ScanRoles(page.Content, ScanOptions{
		Keywords:    p.keywords(),
		StopAtBreak: true,
	})

	protocol.ModeratedBy = sortedOrEmpty(scan.Roles[RoleModeration])
	protocol.ProtocolBy = sortedOrEmpty(scan.Roles[RoleProtocol])
	// Moderators and protocol writers are not counted again as plain
	// participants.
	protocol.Participants = subtract(scan.Roles[RoleParticipant], protocol.ModeratedBy, protocol.ProtocolBy)

	decisions, err := p.extractor.Extract(ctx, protocol, page, groupName)
	if err != nil {
		return nil, nil, fmt.Errorf("extract decisions for page %d: %w", page.OCS.ID, err)
	}

	if err := p.store.Save(ctx, protocol); err != nil {
		return nil, nil, err
	}
	p.log.Debug().Int("page_id", protocol.PageID).Str("date", protocol.Date).
		Int("decisions", len(decisions)).Msg("protocol updated from page")
	return protocol, decisions, nil
}

// resolveGroup sets protocol.GroupID from the page path, falling back to
// the title remainder ("YYYY-MM-DD Group Name"). Returns the resolved
// group's name, or "" when no group could be determined.
func (p *ProtocolParser) resolveGroup(ctx context.Context, page *model.Page, protocol *model.Protocol) string {
	group, err := p.resolver.GroupForPage(ctx, page)
	if err == nil {
		protocol.GroupID = group.ID
		return group.Name
	}
	if !errors.Is(err, ErrGroupNotDeterminable) {
		p.log.Warn().Err(err).Int("page_id", page.OCS.ID).Msg("group lookup failed")
		return ""
	}

	_, rest, found := strings.Cut(page.Title(), " ")
	if found && rest != "" {
		if group, err := p.resolver.GetByName(ctx, rest); err == nil {
			protocol.GroupID = group.ID
			return group.Name
		}
	}

	p.log.Info().Int("page_id", page.OCS.ID).Str("title", page.Title()).
		Msg("protocol group not determinable, saving without group")
	return ""
}
