package controlfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/registration-client/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const controlXML = `<?xml version="1.0"?>
<productDefines xmlns="http://www.suse.com/1.0/yast2ns" xmlns:config="http://www.suse.com/1.0/configns">
  <software>
    <default_patterns>base x11
      Minimal</default_patterns>
    <default_optional_patterns>apparmor  yast2</default_optional_patterns>
  </software>
</productDefines>
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "control.xml")
	require.NoError(t, os.WriteFile(path, []byte(controlXML), 0644))

	control, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "x11", "Minimal"}, control.DefaultPatterns())
	assert.Equal(t, []string{"apparmor", "yast2"}, control.DefaultOptionalPatterns())

	var _ interfaces.DefaultsProvider = control
}

func TestParse_Missing(t *testing.T) {
	control, err := Parse([]byte(`<productDefines><software/></productDefines>`))
	require.NoError(t, err)
	assert.Empty(t, control.DefaultPatterns())
	assert.Empty(t, control.DefaultOptionalPatterns())

	control, err = Parse([]byte(`<productDefines/>`))
	require.NoError(t, err)
	assert.Empty(t, control.DefaultPatterns())
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte(`<productDefines><software>`))
	assert.True(t, errors.Is(err, interfaces.ErrConfig))

	_, err = Parse([]byte(`<other/>`))
	assert.True(t, errors.Is(err, interfaces.ErrConfig))

	_, err = Load(filepath.Join(t.TempDir(), "missing.xml"))
	assert.True(t, errors.Is(err, interfaces.ErrConfig))
}

func TestSelectPatterns(t *testing.T) {
	control, err := Parse([]byte(controlXML))
	require.NoError(t, err)

	required, optional := SelectPatterns(control, []string{"base", "yast2", "kde"})
	assert.Equal(t, []string{"base", "x11", "Minimal"}, required)
	assert.Equal(t, []string{"yast2"}, optional)

	_, optional = SelectPatterns(control, nil)
	assert.Empty(t, optional)
}
