package parser

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treibhausdonaufeld/nextcloud-bot/internal/config"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/model"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/store"
)

func newTestProtocolParser(t *testing.T) (*ProtocolParser, *store.Store) {
	t.Helper()
	s := newTestStore(t)
	org := config.DefaultOrganisation()
	resolver := NewGroupResolver(org, s)
	extractor := NewDecisionExtractor(org, s, zerolog.Nop())
	extractor.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return NewProtocolParser(org, s, resolver, extractor, zerolog.Nop()), s
}

func TestIsProtocolPage(t *testing.T) {
	p, _ := newTestProtocolParser(t)

	tests := []struct {
		name     string
		fileName string
		filePath string
		want     bool
	}{
		{"page in protocol folder", "2024-05-01 AG Garten.md", "Collective/AG Garten/Protokolle", true},
		{"readme of per-protocol subfolder", "Readme.md", "Collective/AG Garten/Protokolle/2024-05-01 AG Garten", true},
		{"landing page of the protocol folder itself", "Readme.md", "Collective/AG Garten/Protokolle", false},
		{"regular page", "Ideen.md", "Collective/AG Garten", false},
		{"english folder keyword", "weekly.md", "Collective/AG Garten/Minutes", true},
		{"top level", "Readme.md", "Collective", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			page := &model.Page{OCS: model.OCSPage{FileName: tc.fileName, FilePath: tc.filePath}}
			assert.Equal(t, tc.want, p.IsProtocolPage(page))
		})
	}
}

func TestProtocolUpdateFromPage(t *testing.T) {
	ctx := context.Background()
	p, s := newTestProtocolParser(t)

	require.NoError(t, s.Save(ctx, &model.Group{Name: "AG Garten", PageID: 7}))

	page := &model.Page{
		Collective: 1,
		OCS: model.OCSPage{
			ID:       21,
			Title:    "2024-05-01 AG Garten",
			FileName: "2024-05-01 AG Garten.md",
			FilePath: "Collective/AG Garten/Protokolle",
		},
		Content: `Moderation: [anna](mention://user/anna)
Protokoll: [ben](mention://user/ben)
Teilnehmer:
- [anna](mention://user/anna)
- [ben](mention://user/ben)
- [chris](mention://user/chris)

---

## Themen

::: success
Entscheidung: Frühjahrsputz am 15.06.
:::
`,
		Subtype: model.SubtypeProtocol,
	}

	protocol, decisions, err := p.UpdateFromPage(ctx, page)
	require.NoError(t, err)

	assert.Equal(t, "Protocol:21", protocol.ID)
	assert.Equal(t, "2024-05-01", protocol.Date)
	assert.Equal(t, "Group:7", protocol.GroupID)
	assert.Equal(t, []string{"anna"}, protocol.ModeratedBy)
	assert.Equal(t, []string{"ben"}, protocol.ProtocolBy)
	// Moderator and protocol writer do not show up again as participants.
	assert.Equal(t, []string{"chris"}, protocol.Participants)

	require.Len(t, decisions, 1)
	assert.Equal(t, "Frühjahrsputz am 15.06.", decisions[0].Title)
	assert.Equal(t, "Group:7", decisions[0].GroupID)
	assert.Equal(t, "AG Garten", decisions[0].GroupName)

	stored, err := store.Get[model.Protocol](ctx, s, "Protocol:21")
	require.NoError(t, err)
	assert.Equal(t, protocol.Participants, stored.Participants)
}

func TestProtocolGroupFromTitleFallback(t *testing.T) {
	ctx := context.Background()
	p, s := newTestProtocolParser(t)

	require.NoError(t, s.Save(ctx, &model.Group{Name: "AG Garten", PageID: 7}))

	// No group segment in the path: the title remainder decides.
	page := &model.Page{
		Collective: 1,
		OCS: model.OCSPage{
			ID:       22,
			Title:    "2024-05-02 AG Garten",
			FileName: "2024-05-02 AG Garten.md",
			FilePath: "Collective/Protokolle",
		},
	}

	protocol, _, err := p.UpdateFromPage(ctx, page)
	require.NoError(t, err)
	assert.Equal(t, "Group:7", protocol.GroupID)
}

func TestProtocolWithoutGroupStillSaved(t *testing.T) {
	ctx := context.Background()
	p, s := newTestProtocolParser(t)

	page := &model.Page{
		Collective: 1,
		OCS: model.OCSPage{
			ID:       23,
			Title:    "2024-05-03 Offenes Treffen",
			FileName: "2024-05-03 Offenes Treffen.md",
			FilePath: "Collective/Protokolle",
		},
	}

	protocol, _, err := p.UpdateFromPage(ctx, page)
	require.NoError(t, err)
	assert.Empty(t, protocol.GroupID)

	_, err = store.Get[model.Protocol](ctx, s, "Protocol:23")
	assert.NoError(t, err)
}

func TestProtocolKeepsDateWithoutValidTitle(t *testing.T) {
	ctx := context.Background()
	p, s := newTestProtocolParser(t)

	require.NoError(t, s.Save(ctx, &model.Protocol{PageID: 24, Date: "2024-04-01"}))

	page := &model.Page{
		Collective: 1,
		OCS: model.OCSPage{
			ID:       24,
			Title:    "Entwurf",
			FileName: "Entwurf.md",
			FilePath: "Collective/Protokolle",
		},
	}

	protocol, _, err := p.UpdateFromPage(ctx, page)
	require.NoError(t, err)
	assert.Equal(t, "2024-04-01", protocol.Date)
}

func TestProtocolMetadataStopsAtBreak(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProtocolParser(t)

	page := &model.Page{
		Collective: 1,
		OCS: model.OCSPage{
			ID:       25,
			Title:    "2024-05-04 Treffen",
			FileName: "2024-05-04 Treffen.md",
			FilePath: "Collective/Protokolle",
		},
		Content: `Teilnehmer: [anna](mention://user/anna)

## Diskussion

Teilnehmer: [ben](mention://user/ben)
`,
	}

	protocol, _, err := p.UpdateFromPage(ctx, page)
	require.NoError(t, err)
	assert.Equal(t, []string{"anna"}, protocol.Participants)
}
