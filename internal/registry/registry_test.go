package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "platforms.json", `[
		{"platform": "X", "type": "contract", "pairs": ["foo", " BAR "]},
		{"platform": "Y", "type": "借贷", "pairs": ["FOO", ""]}
	]`)

	idx, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []Venue{
		{Platform: "X", Type: VenueContract},
		{Platform: "Y", Type: VenueLending},
	}, idx.Lookup("Foo"))
	assert.Equal(t, []Venue{{Platform: "X", Type: VenueContract}}, idx["BAR"])
	assert.Equal(t, []string{"BAR", "FOO"}, idx.Tokens())
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "platforms.toml", `
[[platforms]]
platform = "Lend"
type = "lending"
pairs = ["sol"]

[[platforms]]
platform = "Perp"
type = "合约"
pairs = ["SOL", "ETH"]
`)

	idx, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, idx.Lookup("SOL"), 2)
	assert.Equal(t, VenueContract, idx.Lookup("eth")[0].Type)
}

func TestLoadMissingFile(t *testing.T) {
	idx, err := Load(filepath.Join(t.TempDir(), "nope.json"))

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "nope.json")
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Empty(t, idx)
	assert.NotNil(t, idx)
}

func TestLoadMalformed(t *testing.T) {
	path := writeFile(t, "platforms.json", `{"platform": `)

	idx, err := Load(path)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, idx)
}

func TestLoadUnknownTypeRejected(t *testing.T) {
	path := writeFile(t, "platforms.json", `[{"platform": "Z", "type": "spot", "pairs": ["FOO"]}]`)

	idx, err := Load(path)
	require.ErrorIs(t, err, ErrUnknownVenueType)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, path, cfgErr.Path)
	assert.Empty(t, idx)
}

func TestBuildRejectsEmptyPlatform(t *testing.T) {
	_, err := Build([]Descriptor{{Platform: " ", Type: "contract", Pairs: []string{"FOO"}}})
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestVenueTypeLabels(t *testing.T) {
	assert.Equal(t, "contract", VenueContract.String())
	assert.Equal(t, "借贷", VenueLending.Label())
	assert.Equal(t, "unknown", VenueType(0).String())
}
