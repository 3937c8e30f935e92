package parser

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/treibhausdonaufeld/nextcloud-bot/internal/config"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/model"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/store"
)

// successBlockPattern delimits one recorded decision inside a protocol.
var successBlockPattern = regexp.MustCompile(`(?s)::: success(.*?):::`)

// DecisionExtractor locates success blocks in protocol content and
// replaces the protocol's stored decisions with the result. Replacement
// is delete-then-recreate: decision text is the identity, so there is no
// in-place diffing.
type DecisionExtractor struct {
	org   config.Organisation
	store *store.Store
	log   zerolog.Logger
	now   func() time.Time

	titleKeywords      []*regexp.Regexp
	validUntilKeywords []*regexp.Regexp
	objectionKeywords  []*regexp.Regexp
}

func NewDecisionExtractor(org config.Organisation, s *store.Store, log zerolog.Logger) *DecisionExtractor {
	return &DecisionExtractor{
		org:   org,
		store: s,
		log:   log.With().Str("component", "decision-extractor").Logger(),
		now:   time.Now,

		titleKeywords:      compileKeywordPrefixes(org.DecisionTitleKeywords),
		validUntilKeywords: compileKeywordPrefixes(org.DecisionValidUntilKeywords),
		objectionKeywords:  compileKeywordPrefixes(org.DecisionObjectionKeywords),
	}
}

// compileKeywordPrefixes builds case-insensitive prefix matchers, longest
// keyword first so "einwände" wins over "einwand".
func compileKeywordPrefixes(keywords []string) []*regexp.Regexp {
	sorted := make([]string, len(keywords))
	copy(sorted, keywords)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	out := make([]*regexp.Regexp, 0, len(sorted))
	for _, kw := range sorted {
		out = append(out, regexp.MustCompile(`(?i)^`+regexp.QuoteMeta(kw)+`[:\s\-]*`))
	}
	return out
}

// Extract parses all success blocks of the protocol's page, deletes the
// protocol's previously stored decisions and saves the new set.
//
// Protocols dated in the future are skipped entirely, without touching
// stored decisions: a draft protocol must not wipe real ones.
func (e *DecisionExtractor) Extract(ctx context.Context, protocol *model.Protocol, page *model.Page, groupName string) ([]*model.Decision, error) {
	if page.Content == "" {
		return nil, nil
	}

	if date, ok := protocol.DateObj(); ok && date.After(e.now()) {
		e.log.Info().Int("page_id", protocol.PageID).Str("date", protocol.Date).
			Msg("skipping decision extraction for future protocol")
		return nil, nil
	}

	if err := e.deleteExisting(ctx, protocol.PageID); err != nil {
		return nil, err
	}

	var decisions []*model.Decision
	for _, match := range successBlockPattern.FindAllStringSubmatch(page.Content, -1) {
		decision := e.parseBlock(match[1])
		if decision == nil {
			continue
		}
		decision.Date = protocol.Date
		decision.PageID = protocol.PageID
		decision.GroupID = protocol.GroupID
		decision.GroupName = groupName

		if err := e.store.Save(ctx, decision); err != nil {
			return decisions, fmt.Errorf("save decision %q: %w", decision.Title, err)
		}
		decisions = append(decisions, decision)
	}
	return decisions, nil
}

// deleteExisting removes every stored decision for the page id. Per-item
// failures are logged and the loop continues; losing one stale decision
// is better than keeping the whole outdated set.
func (e *DecisionExtractor) deleteExisting(ctx context.Context, pageID int) error {
	docs, err := e.store.FindDocs(ctx, store.Query{
		Type:  model.TypeDecision,
		Eq:    map[string]any{"page_id": pageID},
		Limit: 1000,
	})
	if err != nil {
		return fmt.Errorf("list decisions for page %d: %w", pageID, err)
	}
	for _, doc := range docs {
		if err := e.store.Delete(ctx, doc.ID); err != nil {
			e.log.Warn().Err(err).Str("id", doc.ID).Msg("failed to delete stale decision")
		}
	}
	return nil
}

// parseBlock parses one success block into a Decision. Returns nil for
// blocks with no parsable content and for template examples.
func (e *DecisionExtractor) parseBlock(block string) *model.Decision {
	lines := strings.Split(strings.TrimSpace(block), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" && len(lines) == 1 {
		return nil
	}

	title := cleanLine(lines[0])
	for _, kw := range e.titleKeywords {
		title = strings.TrimSpace(strings.Trim(kw.ReplaceAllString(title, ""), ":"))
	}

	if e.org.DecisionExampleTitle != "" && strings.Contains(title, e.org.DecisionExampleTitle) {
		return nil
	}

	decision := &model.Decision{Title: title}

	var body []string
	for i := 1; i < len(lines); i++ {
		line := cleanLine(lines[i])
		if line == "" {
			continue
		}

		if rest, ok := matchPrefix(e.validUntilKeywords, line); ok {
			decision.ValidUntil = cleanLine(rest)
			continue
		}

		if rest, ok := matchPrefix(e.objectionKeywords, line); ok {
			// Everything below an objections line continues the objection.
			parts := []string{cleanLine(rest)}
			for j := i + 1; j < len(lines); j++ {
				if cleaned := cleanLine(lines[j]); cleaned != "" {
					parts = append(parts, cleaned)
				}
			}
			decision.Objections = strings.TrimSpace(strings.Join(parts, " "))
			break
		}

		body = append(body, line)
	}
	decision.Text = strings.TrimSpace(strings.Join(body, " "))

	// Decisions always carry a title: promote the body when the title
	// line was empty or keyword-only.
	if decision.Title == "" {
		decision.Title = decision.Text
		decision.Text = ""
	}
	if decision.Title == "" {
		return nil
	}
	return decision
}

func matchPrefix(keywords []*regexp.Regexp, line string) (string, bool) {
	for _, kw := range keywords {
		if loc := kw.FindStringIndex(line); loc != nil {
			return line[loc[1]:], true
		}
	}
	return "", false
}

// cleanLine strips markdown emphasis markers and surrounding whitespace.
func cleanLine(line string) string {
	line = strings.ReplaceAll(line, "**", "")
	line = strings.ReplaceAll(line, "__", "")
	line = strings.Trim(line, "*_\r\n")
	return strings.TrimSpace(line)
}
