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

func newTestExtractor(t *testing.T) (*DecisionExtractor, *store.Store) {
	t.Helper()
	s := newTestStore(t)
	e := NewDecisionExtractor(config.DefaultOrganisation(), s, zerolog.Nop())
	e.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return e, s
}

func protocolPage(id int, content string) (*model.Protocol, *model.Page) {
	protocol := &model.Protocol{PageID: id, Date: "2024-05-01", GroupID: "Group:7"}
	page := &model.Page{
		Collective: 1,
		OCS:        model.OCSPage{ID: id, Title: "2024-05-01 AG Garten"},
		Content:    content,
		Subtype:    model.SubtypeProtocol,
	}
	return protocol, page
}

func TestExtractDecision(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestExtractor(t)

	protocol, page := protocolPage(11, `# Protokoll

::: success
**Entscheidung: Neues Beet anlegen**
Wir legen im Herbst ein neues Hochbeet an.
Gültig bis: 2025-01-01
:::
`)

	decisions, err := e.Extract(ctx, protocol, page, "AG Garten")
	require.NoError(t, err)
	require.Len(t, decisions, 1)

	d := decisions[0]
	assert.Equal(t, "Neues Beet anlegen", d.Title)
	assert.Equal(t, "Wir legen im Herbst ein neues Hochbeet an.", d.Text)
	assert.Equal(t, "2025-01-01", d.ValidUntil)
	assert.Equal(t, "2024-05-01", d.Date)
	assert.Equal(t, 11, d.PageID)
	assert.Equal(t, "Group:7", d.GroupID)
	assert.Equal(t, "AG Garten", d.GroupName)
	assert.Equal(t, "Decision:11:Neues Beet anlegen", d.ID)
}

func TestExtractMultipleBlocks(t *testing.T) {
	ctx := context.Background()
	e, s := newTestExtractor(t)

	protocol, page := protocolPage(11, `::: success
Beschluss: Erste Sache
:::

Diskussion dazwischen.

::: success
Decision: Second thing
:::
`)

	decisions, err := e.Extract(ctx, protocol, page, "")
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, "Erste Sache", decisions[0].Title)
	assert.Equal(t, "Second thing", decisions[1].Title)

	docs, err := s.FindDocs(ctx, store.Query{Type: model.TypeDecision, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestExtractObjectionsGreedy(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestExtractor(t)

	protocol, page := protocolPage(11, `::: success
Entscheidung: Kompost kaufen
Einwände: zu teuer
derzeit kein Budget
wird nächstes Jahr geprüft
:::
`)

	decisions, err := e.Extract(ctx, protocol, page, "")
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "Kompost kaufen", decisions[0].Title)
	assert.Equal(t, "zu teuer derzeit kein Budget wird nächstes Jahr geprüft", decisions[0].Objections)
	assert.Empty(t, decisions[0].Text)
}

func TestExtractPromotesTextToTitle(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestExtractor(t)

	protocol, page := protocolPage(11, `::: success
Entscheidung:
Wir treffen uns künftig alle zwei Wochen.
:::
`)

	decisions, err := e.Extract(ctx, protocol, page, "")
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "Wir treffen uns künftig alle zwei Wochen.", decisions[0].Title)
	assert.Empty(t, decisions[0].Text)
}

func TestExtractSkipsExampleBlock(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestExtractor(t)

	protocol, page := protocolPage(11, `::: success
Entscheidung: Beispiel für eine Entscheidung
:::

::: success
Entscheidung: Echte Entscheidung
:::
`)

	decisions, err := e.Extract(ctx, protocol, page, "")
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "Echte Entscheidung", decisions[0].Title)
}

func TestExtractReplacesStoredDecisions(t *testing.T) {
	ctx := context.Background()
	e, s := newTestExtractor(t)

	protocol, page := protocolPage(11, "::: success\nEntscheidung: Alte Fassung\n:::\n")
	_, err := e.Extract(ctx, protocol, page, "")
	require.NoError(t, err)

	page.Content = "::: success\nEntscheidung: Neue Fassung\n:::\n"
	decisions, err := e.Extract(ctx, protocol, page, "")
	require.NoError(t, err)
	require.Len(t, decisions, 1)

	docs, err := s.FindDocs(ctx, store.Query{Type: model.TypeDecision, Limit: 10})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Decision:11:Neue Fassung", docs[0].ID)
}

func TestExtractSkipsFutureProtocol(t *testing.T) {
	ctx := context.Background()
	e, s := newTestExtractor(t)

	// Seed a real decision from the past.
	protocol, page := protocolPage(11, "::: success\nEntscheidung: Bestehende Entscheidung\n:::\n")
	_, err := e.Extract(ctx, protocol, page, "")
	require.NoError(t, err)

	// A draft page dated in the future must not wipe it.
	protocol.Date = "2024-12-24"
	page.Content = "::: success\nEntscheidung: Geplante Entscheidung\n:::\n"
	decisions, err := e.Extract(ctx, protocol, page, "")
	require.NoError(t, err)
	assert.Empty(t, decisions)

	docs, err := s.FindDocs(ctx, store.Query{Type: model.TypeDecision, Limit: 10})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Decision:11:Bestehende Entscheid", docs[0].ID)
}

func TestExtractEmptyContent(t *testing.T) {
	ctx := context.Background()
	e, s := newTestExtractor(t)

	protocol, page := protocolPage(11, "")
	decisions, err := e.Extract(ctx, protocol, page, "")
	require.NoError(t, err)
	assert.Empty(t, decisions)

	docs, err := s.FindDocs(ctx, store.Query{Type: model.TypeDecision, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestParseBlockEmptyReturnsNil(t *testing.T) {
	e, _ := newTestExtractor(t)
	assert.Nil(t, e.parseBlock("\n\n"))
}
