package htmlmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jira2redmine/internal/attachments"
	"jira2redmine/internal/types"
)

func TestUsable(t *testing.T) {
	assert.False(t, Usable(""))
	assert.False(t, Usable("   \n\t"))
	assert.False(t, Usable("<!-- ADF macro (type = 'table') -->"))
	assert.False(t, Usable("<p>real text</p><!-- ADF macro -->"))
	assert.False(t, Usable("<!-- only a comment -->"))
	assert.False(t, Usable("<!-- one --> \n <!-- two -->"))
	assert.True(t, Usable("<p>hello</p>"))
	assert.True(t, Usable("plain text is fine too"))
}

func testMatcher() (*attachments.Matcher, *attachments.Index) {
	m := attachments.NewMatcher("https://acme.atlassian.net")
	ix := attachments.NewIndex([]types.AttachmentMapping{
		{JiraAttachmentID: 42, Filename: "file.pdf"},
	})
	return m, ix
}

func TestConvertBasicMarkup(t *testing.T) {
	m, ix := testMatcher()
	got, n, err := Convert("<h2>Title</h2><p>Some <strong>bold</strong> text.</p>", m, ix)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Contains(t, got, "## Title")
	assert.Contains(t, got, "**bold**")
}

func TestConvertRewritesAttachmentLinks(t *testing.T) {
	m, ix := testMatcher()
	html := `<p>See <a href="https://acme.atlassian.net/secure/attachment/42/file.pdf">the report</a>.</p>`
	got, n, err := Convert(html, m, ix)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, got, "[the report](42__file.pdf)")
	assert.NotContains(t, got, "atlassian.net")
}

func TestConvertStripsScriptsAndProlog(t *testing.T) {
	m, ix := testMatcher()
	html := `<?xml version="1.0"?><p>keep</p><script>alert(1)</script><style>p{}</style>`
	got, _, err := Convert(html, m, ix)
	require.NoError(t, err)
	assert.Contains(t, got, "keep")
	assert.NotContains(t, got, "alert")
	assert.NotContains(t, got, "xml version")
}

func TestConvertList(t *testing.T) {
	m, ix := testMatcher()
	got, _, err := Convert("<ul><li>one</li><li>two</li></ul>", m, ix)
	require.NoError(t, err)
	assert.Contains(t, got, "- one")
	assert.Contains(t, got, "- two")
}

func TestConvertCollapsesBlankRuns(t *testing.T) {
	m, ix := testMatcher()
	got, _, err := Convert("<p>a</p><br><br><br><p>b</p>", m, ix)
	require.NoError(t, err)
	assert.NotContains(t, got, "\n\n\n")
}
