package collectives

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/treibhausdonaufeld/nextcloud-bot/internal/model"
)

// Tracker reports whether a page version was already processed.
// A nil Tracker means every page is loaded on every cycle.
type Tracker interface {
	Unchanged(ctx context.Context, pageID int, content string, timestamp int64) bool
}

// Loader fetches pages of one collective and filters out the ones the
// tracker already saw in this exact version.
type Loader struct {
	client     *Client
	tracker    Tracker
	collective int
	log        zerolog.Logger
}

func NewLoader(client *Client, tracker Tracker, collective int, log zerolog.Logger) *Loader {
	return &Loader{
		client:     client,
		tracker:    tracker,
		collective: collective,
		log:        log.With().Str("component", "loader").Logger(),
	}
}

// LoadChanged lists the collective's pages, downloads content for each
// and drops pages whose fingerprint is unchanged. A content fetch
// failure skips just that page.
func (l *Loader) LoadChanged(ctx context.Context) ([]*model.Page, error) {
	listing, err := l.client.ListPages(ctx, l.collective)
	if err != nil {
		return nil, fmt.Errorf("load collective %d: %w", l.collective, err)
	}

	var pages []*model.Page
	skipped := 0
	for _, ocs := range listing {
		content, err := l.client.FetchContent(ctx, ocs)
		if err != nil {
			l.log.Warn().Err(err).Int("page_id", ocs.ID).Str("title", ocs.Title).Msg("content fetch failed, skipping page")
			continue
		}

		if l.tracker != nil && l.tracker.Unchanged(ctx, ocs.ID, content, ocs.Timestamp) {
			skipped++
			continue
		}

		pages = append(pages, &model.Page{
			Collective: l.collective,
			OCS:        ocs,
			Content:    content,
		})
	}

	l.log.Info().Int("total", len(listing)).Int("changed", len(pages)).Int("skipped", skipped).Msg("collective pages loaded")
	return pages, nil
}
