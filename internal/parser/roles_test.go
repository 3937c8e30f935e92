package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testKeywords() RoleKeywords {
	return RoleKeywords{
		"koordination": RoleCoordination,
		"delegierte":   RoleDelegate,
		"mitglieder":   RoleMember,
	}
}

func TestScanRolesKeywordSections(t *testing.T) {
	content := `# AG Garten

Koordination: [anna](mention://user/anna) [ben](mention://user/ben)
Delegierte:
- [chris](mention://user/chris)
Mitglieder:
- [dora](mention://user/dora)
- [emil](mention://user/emil)
`
	scan := ScanRoles(content, ScanOptions{Keywords: testKeywords()})

	assert.Equal(t, []string{"anna", "ben"}, scan.Roles[RoleCoordination])
	assert.Equal(t, []string{"chris"}, scan.Roles[RoleDelegate])
	assert.Equal(t, []string{"dora", "emil"}, scan.Roles[RoleMember])
}

func TestScanRolesResetOnFreeText(t *testing.T) {
	// The paragraph between the keyword sections must deactivate the
	// member slot, so the mention in running text is not collected.
	content := `Mitglieder:
- [anna](mention://user/anna)

Wir treffen uns jeden Dienstag im Garten.
Fragen gerne an [ben](mention://user/ben) stellen.
`
	scan := ScanRoles(content, ScanOptions{Keywords: testKeywords()})

	assert.Equal(t, []string{"anna"}, scan.Roles[RoleMember])
}

func TestScanRolesBlankLinesKeepSlot(t *testing.T) {
	content := `Mitglieder:

- [anna](mention://user/anna)

- [ben](mention://user/ben)
`
	scan := ScanRoles(content, ScanOptions{Keywords: testKeywords()})

	assert.Equal(t, []string{"anna", "ben"}, scan.Roles[RoleMember])
}

func TestScanRolesKeywordLineWithMentions(t *testing.T) {
	content := "Koordination: [anna](mention://user/anna), [ben](mention://user/ben)"
	scan := ScanRoles(content, ScanOptions{Keywords: testKeywords()})

	assert.Equal(t, []string{"anna", "ben"}, scan.Roles[RoleCoordination])
}

func TestScanRolesStopAtBreak(t *testing.T) {
	content := `Teilnehmer: [anna](mention://user/anna)

---

Teilnehmer: [ben](mention://user/ben)
`
	scan := ScanRoles(content, ScanOptions{
		Keywords:    RoleKeywords{"teilnehmer": RoleParticipant},
		StopAtBreak: true,
	})

	assert.Equal(t, []string{"anna"}, scan.Roles[RoleParticipant])
}

func TestScanRolesStopAtHeading(t *testing.T) {
	content := `Moderation: [anna](mention://user/anna)

## Tagesordnung

Moderation: [ben](mention://user/ben)
`
	scan := ScanRoles(content, ScanOptions{
		Keywords:    RoleKeywords{"moderation": RoleModeration},
		StopAtBreak: true,
	})

	assert.Equal(t, []string{"anna"}, scan.Roles[RoleModeration])
}

func TestScanRolesShortNames(t *testing.T) {
	content := `Kurznamen: Garten, Gartengruppe, *AG-G*
Mitglieder: [anna](mention://user/anna)
`
	scan := ScanRoles(content, ScanOptions{
		Keywords:          testKeywords(),
		ShortNameKeywords: []string{"kurznamen"},
	})

	assert.Equal(t, []string{"ag-g", "garten", "gartengruppe"}, scan.ShortNames)
	assert.Equal(t, []string{"anna"}, scan.Roles[RoleMember])
}

func TestScanRolesKeywordCaseAndMarkup(t *testing.T) {
	content := "**Mitglieder:** [anna](mention://user/anna)"
	scan := ScanRoles(content, ScanOptions{Keywords: testKeywords()})

	assert.Equal(t, []string{"anna"}, scan.Roles[RoleMember])
}

func TestSubtract(t *testing.T) {
	got := subtract(
		[]string{"chris", "anna", "ben", "anna"},
		[]string{"anna"},
		[]string{"ben"},
	)
	assert.Equal(t, []string{"chris"}, got)

	assert.Equal(t, []string{}, subtract(nil))
}
