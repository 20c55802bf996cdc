package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandeep511/lora-forger/pkg/domain"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTemplatesCommands(t *testing.T) {
	t.Setenv("LORA_CONFIG", "")
	storeFlags := []string{"--store", "file", "--store-path", filepath.Join(t.TempDir(), "store.json")}
	with := func(args ...string) []string { return append(args, storeFlags...) }

	out, err := execute(t, with("templates", "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, domain.DefaultDatasetTemplateID)
	assert.Contains(t, out, domain.DefaultInferenceTemplateID)

	out, err = execute(t, with("templates", "fork", domain.DefaultDatasetTemplateID, "--name", "Mine")...)
	require.NoError(t, err)
	forkedID := strings.TrimSpace(out)
	require.NotEmpty(t, forkedID)

	out, err = execute(t, with("templates", "show", forkedID)...)
	require.NoError(t, err)
	assert.Contains(t, out, "# Mine")

	_, err = execute(t, with("templates", "delete", domain.DefaultDatasetTemplateID)...)
	assert.True(t, domain.IsProtected(err))

	_, err = execute(t, with("templates", "select", "inference", forkedID)...)
	assert.True(t, domain.IsValidation(err))

	require.NoError(t, func() error { _, err := execute(t, with("templates", "delete", forkedID)...); return err }())
}

func TestCaptionCommand_Validation(t *testing.T) {
	t.Run("APIキーが無ければ何もしないのだ", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")
		_, err := execute(t, "caption", "--trigger", "OHWX", "--input-dir", t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "GEMINI_API_KEY")
	})

	t.Run("トリガーワードが空なら外部呼び出しの前に失敗するのだ", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "dummy")
		_, err := execute(t, "caption", "--trigger", "", "--input-dir", t.TempDir())
		assert.True(t, domain.IsValidation(err))
	})
}
