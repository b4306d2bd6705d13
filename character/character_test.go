package character

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsoncCharacter = `{
  // persona
  "name": "Eliza",
  "plugins": ["membase", "@elizaos/plugin-membase",],
  "bio": "Keeps notes on Membase.",
  "lore": ["first line", "second line"],
  /* hub configuration */
  "settings": {
    "MEMBASE_HUB": "https://testnet.hub.membase.io",
    "voice": {"model": "en_US-male-medium"},
    "secrets": {"MEMBASE_ACCOUNT": "alice", "MEMBASE_HUB": "secret-hub",},
  },
}`

const yamlCharacter = `
name: Trinity
plugins:
  - membase
bio:
  - Stores memories.
  - Never forgets.
settings:
  MEMBASE_HUB: hub.example
  secrets:
    MEMBASE_ACCOUNT: bob
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_JSONC(t *testing.T) {
	path := writeFile(t, "eliza.character.jsonc", jsoncCharacter)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Eliza", c.Name)
	assert.Equal(t, path, c.Path)
	assert.Equal(t, []string{"membase", "@elizaos/plugin-membase"}, c.Plugins)
	assert.Equal(t, Lines{"Keeps notes on Membase."}, c.Bio)
	assert.Equal(t, "first line second line", c.Lore.String())

	settings := c.SettingsChain()
	assert.Equal(t, "secret-hub", settings.GetSetting("MEMBASE_HUB"), "secrets win over settings")
	assert.Equal(t, "alice", settings.GetSetting("MEMBASE_ACCOUNT"))
	assert.Empty(t, c.Values().GetSetting("voice"), "nested values are not settings")
	assert.Equal(t, []string{"MEMBASE_ACCOUNT", "MEMBASE_HUB"}, c.SettingKeys())
}

func TestLoad_JSONWithPlainExtension(t *testing.T) {
	path := writeFile(t, "eliza.json", `{"name": "Eliza", "plugins": []}`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Eliza", c.Name)
	assert.Empty(t, c.Plugins)
	assert.Empty(t, c.Secrets())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "trinity.yaml", yamlCharacter)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Trinity", c.Name)
	assert.Equal(t, []string{"membase"}, c.Plugins)
	assert.Equal(t, Lines{"Stores memories.", "Never forgets."}, c.Bio)

	settings := c.SettingsChain()
	assert.Equal(t, "hub.example", settings.GetSetting("MEMBASE_HUB"))
	assert.Equal(t, "bob", settings.GetSetting("MEMBASE_ACCOUNT"))
}

func TestSettingsFallBackToEnvironment(t *testing.T) {
	t.Setenv("MEMBASE_ACCOUNT", "from-env")
	t.Setenv("MEMBASE_HUB", "env-hub")

	c := &Character{Name: "x", Settings: map[string]any{"MEMBASE_HUB": "char-hub"}}
	settings := c.SettingsChain()

	assert.Equal(t, "char-hub", settings.GetSetting("MEMBASE_HUB"))
	assert.Equal(t, "from-env", settings.GetSetting("MEMBASE_ACCOUNT"))
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{name: "missing name", file: "a.json", content: `{"plugins": ["membase"]}`, wantErr: "character name is required"},
		{name: "empty plugin", file: "b.yaml", content: "name: x\nplugins: [membase, ' ']\n", wantErr: "plugins[1]"},
		{name: "bad json", file: "c.json", content: `{"name": `, wantErr: "failed to parse character"},
		{name: "bad bio", file: "d.json", content: `{"name": "x", "bio": 42}`, wantErr: "expected a string or a list of strings"},
		{name: "bad yaml bio", file: "e.yml", content: "name: x\nbio: {a: b}\n", wantErr: "expected a string or a list of strings"},
		{name: "unsupported format", file: "f.toml", content: `name = "x"`, wantErr: "unsupported character format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to read character file")
}

func TestLoadAll(t *testing.T) {
	first := writeFile(t, "eliza.jsonc", jsoncCharacter)
	second := writeFile(t, "trinity.yml", yamlCharacter)

	characters, err := LoadAll([]string{first, " ", second})
	require.NoError(t, err)
	require.Len(t, characters, 2)
	assert.Equal(t, "Eliza", characters[0].Name)
	assert.Equal(t, "Trinity", characters[1].Name)

	characters, err = LoadAll(nil)
	require.NoError(t, err)
	require.Len(t, characters, 1)
	assert.Equal(t, Default().Name, characters[0].Name)
	assert.NoError(t, characters[0].Validate())

	_, err = LoadAll([]string{first, filepath.Join(t.TempDir(), "nope.json")})
	assert.Error(t, err)
}

func TestRuntimeOptions(t *testing.T) {
	c := &Character{Name: "Eliza", Bio: Lines{"a", "b"}}
	assert.Len(t, c.RuntimeOptions(), 1)
}
