package jira

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProjectJQLFirstPage(t *testing.T) {
	got := ProjectJQL("PROJ", "", 0)
	assert.Equal(t, `project = "PROJ" ORDER BY id ASC`, got)
}

func TestProjectJQLKeyset(t *testing.T) {
	got := ProjectJQL("PROJ", "", 10042)
	assert.Equal(t, `project = "PROJ" AND id > 10042 ORDER BY id ASC`, got)
}

func TestProjectJQLExtraFilter(t *testing.T) {
	got := ProjectJQL("PROJ", `status != Done`, 7)
	assert.Equal(t, `project = "PROJ" AND (status != Done) AND id > 7 ORDER BY id ASC`, got)
}

func TestProjectJQLStripsTrailingOrderBy(t *testing.T) {
	got := ProjectJQL("PROJ", `labels = migration ORDER BY updated DESC`, 0)
	assert.Equal(t, `project = "PROJ" AND (labels = migration) ORDER BY id ASC`, got)

	got = ProjectJQL("PROJ", `labels = migration order by created asc, id desc`, 0)
	assert.Equal(t, `project = "PROJ" AND (labels = migration) ORDER BY id ASC`, got)
}

func TestProjectJQLQuotesKey(t *testing.T) {
	got := ProjectJQL(`WE"IRD`, "", 0)
	assert.Equal(t, `project = "WE\"IRD" ORDER BY id ASC`, got)
}
