package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "z-bid-doc-api/pkg/errors"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	return store, dir
}

func writeInput(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inputs", name), []byte(content), 0o644))
}

func TestNewFileStore_CreatesLayout(t *testing.T) {
	store, dir := newTestStore(t)

	for _, sub := range []string{"inputs", "outputs", filepath.Join("outputs", "outline")} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	assert.NoError(t, store.HealthCheck(context.Background()))
}

func TestLoadInputs(t *testing.T) {
	store, dir := newTestStore(t)
	writeInput(t, dir, "tech.md", "# 技术要求\n内容")
	writeInput(t, dir, "score.md", "# 评分标准\n内容")

	inputs, err := store.LoadInputs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "# 技术要求\n内容", inputs.Tech)
	assert.Equal(t, "# 评分标准\n内容", inputs.Score)
}

func TestLoadInputs_MissingFile(t *testing.T) {
	store, dir := newTestStore(t)
	writeInput(t, dir, "tech.md", "内容")

	_, err := store.LoadInputs(context.Background())
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeInputMissing, appErr.Code)
}

func TestLoadInputs_EmptyFile(t *testing.T) {
	store, dir := newTestStore(t)
	writeInput(t, dir, "tech.md", "内容")
	writeInput(t, dir, "score.md", "   \n\t")

	_, err := store.LoadInputs(context.Background())
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeInputEmpty, appErr.Code)
}

func TestSaveAndLoadOutline(t *testing.T) {
	store, dir := newTestStore(t)
	outlineJSON := []byte(`{"body_paragraphs": []}`)

	require.NoError(t, store.SaveOutline(context.Background(), outlineJSON, "# 大纲"))

	got, err := store.LoadOutlineJSON(context.Background())
	require.NoError(t, err)
	assert.Equal(t, outlineJSON, got)

	md, err := os.ReadFile(filepath.Join(dir, "outputs", "outline", "outline.md"))
	require.NoError(t, err)
	assert.Equal(t, "# 大纲", string(md))
}

func TestLoadOutlineJSON_NotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.LoadOutlineJSON(context.Background())
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeOutlineNotFound, appErr.Code)
}

func TestSaveAndLoadContent(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.SaveContent(context.Background(), "# 完整文档\n正文"))

	got, err := store.LoadContent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "# 完整文档\n正文", got)
}

func TestLoadContent_NotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.LoadContent(context.Background())
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeContentNotFound, appErr.Code)
}
