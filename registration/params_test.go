package registration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPLanguage(t *testing.T) {
	tests := map[string]string{
		"de_DE.UTF-8":      "de-DE",
		"en_US":            "en-US",
		"cs_CZ.UTF-8@euro": "cs-CZ",
		"fr":               "fr",
		"C":                "",
		"C.UTF-8":          "",
		"POSIX":            "",
		"":                 "",
	}
	for locale, expected := range tests {
		assert.Equal(t, expected, HTTPLanguage(locale), locale)
	}
}

func TestInsecureFromCmdline(t *testing.T) {
	dir := t.TempDir()
	write := func(content string) string {
		path := filepath.Join(dir, "cmdline")
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	assert.True(t, InsecureFromCmdline(write("splash=silent reg_ssl_verify=0\n")))
	assert.False(t, InsecureFromCmdline(write("splash=silent reg_ssl_verify=1\n")))
	assert.False(t, InsecureFromCmdline(write("xreg_ssl_verify=0")))
	assert.False(t, InsecureFromCmdline(filepath.Join(dir, "missing")))
}
