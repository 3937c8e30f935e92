// Package sync drives a page through parse, persist and index: one page
// at a time, sequentially, with the revision check in the store as the
// only guard against concurrent external edits.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/treibhausdonaufeld/nextcloud-bot/internal/model"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/parser"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/search"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/store"
)

// Engine orchestrates the per-page processing pipeline.
type Engine struct {
	store     *store.Store
	index     search.Indexer
	chunker   search.Chunker
	resolver  *parser.GroupResolver
	groups    *parser.GroupParser
	protocols *parser.ProtocolParser
	log       zerolog.Logger
}

func NewEngine(s *store.Store, index search.Indexer, chunker search.Chunker, resolver *parser.GroupResolver, groups *parser.GroupParser, protocols *parser.ProtocolParser, log zerolog.Logger) *Engine {
	return &Engine{
		store:     s,
		index:     index,
		chunker:   chunker,
		resolver:  resolver,
		groups:    groups,
		protocols: protocols,
		log:       log.With().Str("component", "sync").Logger(),
	}
}

// PageResult is the per-page outcome of a batch run.
type PageResult struct {
	PageID  int
	Subtype model.PageSubtype
	Err     error
}

// Classify determines what kind of page this is. Protocol folders win
// over group folders: a protocol's path usually also contains its
// group's folder.
func (e *Engine) Classify(page *model.Page) model.PageSubtype {
	if e.protocols.IsProtocolPage(page) {
		return model.SubtypeProtocol
	}
	if e.isGroupPage(page) {
		return model.SubtypeGroup
	}
	return model.SubtypeNone
}

// isGroupPage reports whether the page is the landing page of a group
// folder.
func (e *Engine) isGroupPage(page *model.Page) bool {
	if !page.IsReadme() {
		return false
	}
	parts := strings.Split(page.OCS.FilePath, "/")
	if len(parts) == 0 {
		return false
	}
	return e.resolver.ValidName(parts[len(parts)-1])
}

// ProcessPage classifies and parses one page, saves it and refreshes its
// chunks in the search index. Index trouble never fails the page save:
// the index is derived state and catches up on the next cycle.
func (e *Engine) ProcessPage(ctx context.Context, page *model.Page) error {
	page.Subtype = e.Classify(page)

	var groupID string
	switch page.Subtype {
	case model.SubtypeGroup:
		group, err := e.groups.UpdateFromPage(ctx, page)
		if err != nil && !errors.Is(err, parser.ErrGroupNotDeterminable) {
			return fmt.Errorf("parse group page %d: %w", page.OCS.ID, err)
		}
		if group != nil {
			groupID = group.ID
		}
	case model.SubtypeProtocol:
		protocol, _, err := e.protocols.UpdateFromPage(ctx, page)
		if err != nil {
			return fmt.Errorf("parse protocol page %d: %w", page.OCS.ID, err)
		}
		groupID = protocol.GroupID
	}

	if err := e.store.Save(ctx, page); err != nil {
		return fmt.Errorf("save page %d: %w", page.OCS.ID, err)
	}

	e.refreshChunks(ctx, page, groupID)
	return nil
}

// refreshChunks replaces the page's chunks in the index. Deleting by
// page id first clears stale higher-index chunks when content shrank.
func (e *Engine) refreshChunks(ctx context.Context, page *model.Page, groupID string) {
	if err := e.index.DeleteByPage(ctx, page.OCS.ID); err != nil {
		e.log.Warn().Err(err).Int("page_id", page.OCS.ID).Msg("chunk delete failed, index may hold stale chunks")
	}

	chunks := e.chunker.ChunkPage(page, groupID)
	if len(chunks) == 0 {
		return
	}
	if err := e.index.IndexChunks(ctx, chunks); err != nil {
		e.log.Warn().Err(err).Int("page_id", page.OCS.ID).Int("chunks", len(chunks)).
			Msg("chunk index failed, page saved without index update")
	}
}

// ProcessPages runs the full batch sequentially and reports per-page
// outcomes. One failing page never aborts the rest.
func (e *Engine) ProcessPages(ctx context.Context, pages []*model.Page) []PageResult {
	e.resolver.Reset()

	results := make([]PageResult, 0, len(pages))
	for _, page := range pages {
		err := e.ProcessPage(ctx, page)
		if err != nil {
			e.log.Error().Err(err).Int("page_id", page.OCS.ID).Msg("page processing failed")
		}
		results = append(results, PageResult{PageID: page.OCS.ID, Subtype: page.Subtype, Err: err})
	}
	return results
}

// DeletePage removes a page and everything derived from it: entities
// keyed by the numeric page id, then the index chunks, then the page
// document last. Sub-failures never stop the cascade; they are returned
// so the caller can see what was left behind. The error is non-nil only
// when the page document itself cannot be removed.
func (e *Engine) DeletePage(ctx context.Context, collective, pageID int) ([]error, error) {
	var subErrs []error
	for _, docType := range []string{model.TypeDecision, model.TypeProtocol, model.TypeGroup} {
		docs, err := e.store.FindDocs(ctx, store.Query{
			Type:  docType,
			Eq:    map[string]any{"page_id": pageID},
			Limit: 1000,
		})
		if err != nil {
			e.log.Warn().Err(err).Str("type", docType).Int("page_id", pageID).Msg("cascade lookup failed")
			subErrs = append(subErrs, fmt.Errorf("find %s docs for page %d: %w", docType, pageID, err))
			continue
		}
		for _, doc := range docs {
			if err := e.store.Delete(ctx, doc.ID); err != nil {
				e.log.Warn().Err(err).Str("id", doc.ID).Msg("cascade delete failed")
				subErrs = append(subErrs, fmt.Errorf("delete %s: %w", doc.ID, err))
			}
		}
	}

	if err := e.index.DeleteByPage(ctx, pageID); err != nil {
		e.log.Warn().Err(err).Int("page_id", pageID).Msg("chunk cascade delete failed")
		subErrs = append(subErrs, fmt.Errorf("delete chunks for page %d: %w", pageID, err))
	}

	if err := e.store.Delete(ctx, model.PageID(collective, pageID)); err != nil && !errors.Is(err, store.ErrNotFound) {
		return subErrs, fmt.Errorf("delete page %d: %w", pageID, err)
	}
	e.log.Info().Int("page_id", pageID).Int("sub_errors", len(subErrs)).Msg("page deleted with cascade")
	return subErrs, nil
}
