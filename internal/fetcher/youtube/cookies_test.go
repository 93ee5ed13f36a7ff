package youtube

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeCookieFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseCookieFile(t *testing.T) {
	t.Parallel()

	content := "# Netscape HTTP Cookie File\n" +
		"# This is a comment\n" +
		"\n" +
		".youtube.com\tTRUE\t/\tTRUE\t1767225600\tSID\tabc123\n" +
		".youtube.com\tTRUE\t/\tFALSE\t0\tPREF\tf6=400\n" +
		"malformed line without tabs\n" +
		"too\tfew\tfields\n"

	cookies, err := parseCookieFile(writeCookieFile(t, content))
	require.NoError(t, err)
	require.Len(t, cookies, 2)

	sid := cookies[0]
	require.Equal(t, "SID", sid.Name)
	require.Equal(t, "abc123", sid.Value)
	require.Equal(t, "youtube.com", sid.Domain)
	require.Equal(t, "/", sid.Path)
	require.True(t, sid.Secure)
	require.False(t, sid.Expires.IsZero())

	pref := cookies[1]
	require.Equal(t, "PREF", pref.Name)
	require.False(t, pref.Secure)
	require.True(t, pref.Expires.IsZero(), "zero expiry stays unset")
}

func TestParseCookieFileMissing(t *testing.T) {
	t.Parallel()

	_, err := parseCookieFile(filepath.Join(t.TempDir(), "absent.txt"))
	require.Error(t, err)
}

func TestNewCookieJar(t *testing.T) {
	t.Parallel()

	content := ".youtube.com\tTRUE\t/\tTRUE\t4102444800\tSID\tabc123\n"
	cookies, err := parseCookieFile(writeCookieFile(t, content))
	require.NoError(t, err)

	jar, err := newCookieJar(cookies)
	require.NoError(t, err)

	u, _ := url.Parse("https://youtube.com/watch")
	got := jar.Cookies(u)
	require.NotEmpty(t, got)
	require.Equal(t, "SID", got[0].Name)
}
