package i18n

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadOverridesBuiltins(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "en-US.yaml"), []byte("status.active: Online\ncustom.key: Custom\n"), 0644)
	assert.NoError(t, err)

	b, err := Load(dir)
	assert.NoError(t, err)

	assert.Equal(t, "Online", b.T("en-US", "status.active"))
	assert.Equal(t, "Custom", b.T("en-US", "custom.key"))
	assert.Equal(t, "Inactive", b.T("en-US", "status.inactive"), "untouched builtins survive the merge")
}

func TestLoadMissingDirUsesBuiltins(t *testing.T) {
	b, err := Load(filepath.Join(t.TempDir(), "nope"))
	assert.NoError(t, err)
	assert.True(t, b.Supported(DefaultLanguage))
	assert.True(t, b.Supported("en-US"))
	assert.False(t, b.Supported("fr-FR"))
	assert.Equal(t, "Ativo", b.T(DefaultLanguage, "status.active"))
}

func TestTranslationFallback(t *testing.T) {
	b := Builtin()

	// Unknown language falls back to the default bundle.
	assert.Equal(t, "Ativo", b.T("fr-FR", "status.active"))

	// Unknown key falls back to the key itself.
	assert.Equal(t, "no.such.key", b.T("en-US", "no.such.key"))
}

func TestLoadRejectsBadYaml(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "pt-BR.yaml"), []byte("{invalid"), 0644)
	assert.NoError(t, err)

	_, err = Load(dir)
	assert.Error(t, err)
}
