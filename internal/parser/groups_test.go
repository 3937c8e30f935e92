package parser

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treibhausdonaufeld/nextcloud-bot/internal/cache"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/config"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/model"
	"github.com/treibhausdonaufeld/nextcloud-bot/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	c, err := cache.New(16)
	require.NoError(t, err)
	return store.New(store.NewMemoryBackend(), c, zerolog.Nop())
}

func TestValidGroupNames(t *testing.T) {
	r := NewGroupResolver(config.DefaultOrganisation(), nil)

	names := r.ValidGroupNames("Collective/AG Garten/UG Kompost/Readme.md")
	assert.Equal(t, []string{"UG Kompost", "AG Garten"}, names)

	assert.Empty(t, r.ValidGroupNames("Collective/Ideen/Notizen.md"))
}

func TestValidNameExtraGroups(t *testing.T) {
	org := config.DefaultOrganisation()
	org.ExtraGroups = []string{"Plenum"}
	r := NewGroupResolver(org, nil)

	assert.True(t, r.ValidName("AG Garten"))
	assert.True(t, r.ValidName("plenum"))
	assert.False(t, r.ValidName("Ideen"))
}

func TestGetByNameShortNameFallback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Save(ctx, &model.Group{
		Name:       "AG Garten",
		PageID:     7,
		ShortNames: []string{"garten", "ag-g"},
	}))

	r := NewGroupResolver(config.DefaultOrganisation(), s)

	byName, err := r.GetByName(ctx, "ag garten")
	require.NoError(t, err)
	assert.Equal(t, 7, byName.PageID)

	byAlias, err := r.GetByName(ctx, "Garten")
	require.NoError(t, err)
	assert.Equal(t, 7, byAlias.PageID)

	_, err = r.GetByName(ctx, "Unbekannt")
	assert.ErrorIs(t, err, ErrGroupNotDeterminable)
}

func TestResolverMemoizesUntilReset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := NewGroupResolver(config.DefaultOrganisation(), s)

	_, err := r.GetByName(ctx, "AG Garten")
	assert.ErrorIs(t, err, ErrGroupNotDeterminable)

	require.NoError(t, s.Save(ctx, &model.Group{Name: "AG Garten", PageID: 7}))

	// Still the memoized empty list.
	_, err = r.GetByName(ctx, "AG Garten")
	assert.ErrorIs(t, err, ErrGroupNotDeterminable)

	r.Reset()
	got, err := r.GetByName(ctx, "AG Garten")
	require.NoError(t, err)
	assert.Equal(t, 7, got.PageID)
}

func groupPage(id int, path, content string) *model.Page {
	return &model.Page{
		Collective: 1,
		OCS: model.OCSPage{
			ID:       id,
			Title:    "Readme",
			FileName: "Readme.md",
			FilePath: path,
			Emoji:    "🌱",
		},
		Content: content,
		Subtype: model.SubtypeGroup,
	}
}

func TestGroupUpdateFromPage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	org := config.DefaultOrganisation()
	resolver := NewGroupResolver(org, s)
	parser := NewGroupParser(org, s, resolver, zerolog.Nop())

	page := groupPage(7, "Collective/AG Garten", `# AG Garten

Koordination: [anna](mention://user/anna)
Delegierte: [ben](mention://user/ben)
Mitglieder:
- [anna](mention://user/anna)
- [ben](mention://user/ben)
- [chris](mention://user/chris)
Kurznamen: Garten, Gartengruppe
`)

	group, err := parser.UpdateFromPage(ctx, page)
	require.NoError(t, err)

	assert.Equal(t, "Group:7", group.ID)
	assert.Equal(t, "AG Garten", group.Name)
	assert.Equal(t, "🌱", group.Emoji)
	assert.Equal(t, []string{"anna"}, group.Coordination)
	assert.Equal(t, []string{"ben"}, group.Delegate)
	// Coordinators and delegates must not reappear as plain members.
	assert.Equal(t, []string{"chris"}, group.Members)
	assert.Equal(t, []string{"garten", "gartengruppe"}, group.ShortNames)
	assert.Equal(t, []string{"anna", "ben", "chris"}, group.AllMembers())

	stored, err := store.Get[model.Group](ctx, s, "Group:7")
	require.NoError(t, err)
	assert.Equal(t, group.Members, stored.Members)
}

func TestGroupUpdateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	org := config.DefaultOrganisation()
	parser := NewGroupParser(org, s, NewGroupResolver(org, s), zerolog.Nop())

	page := groupPage(7, "Collective/AG Garten", `Mitglieder: [anna](mention://user/anna)
Kurznamen: Garten
`)

	first, err := parser.UpdateFromPage(ctx, page)
	require.NoError(t, err)
	second, err := parser.UpdateFromPage(ctx, page)
	require.NoError(t, err)

	assert.Equal(t, first.Members, second.Members)
	assert.Equal(t, []string{"garten"}, second.ShortNames)
}

func TestGroupUpdateSetsParent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	org := config.DefaultOrganisation()
	parser := NewGroupParser(org, s, NewGroupResolver(org, s), zerolog.Nop())

	page := groupPage(9, "Collective/AG Garten/UG Kompost", "")
	group, err := parser.UpdateFromPage(ctx, page)
	require.NoError(t, err)

	assert.Equal(t, "UG Kompost", group.Name)
	assert.Equal(t, "AG Garten", group.ParentGroup)
	assert.Equal(t, []string{}, group.Members)
}

func TestGroupUpdateNoGroupPath(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	org := config.DefaultOrganisation()
	parser := NewGroupParser(org, s, NewGroupResolver(org, s), zerolog.Nop())

	_, err := parser.UpdateFromPage(ctx, groupPage(9, "Collective/Ideen", ""))
	assert.ErrorIs(t, err, ErrGroupNotDeterminable)
}
