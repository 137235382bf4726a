package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/interview-engine/internal/api"
	"github.com/terra-clan/interview-engine/internal/catalog"
	"github.com/terra-clan/interview-engine/internal/config"
	"github.com/terra-clan/interview-engine/internal/interview"
	"github.com/terra-clan/interview-engine/internal/models"
	"github.com/terra-clan/interview-engine/internal/storage"
)

const testKey = "prepctl-test-key-0001"

func newBackend(t *testing.T) string {
	t.Helper()

	repo := storage.NewMemoryRepository()
	require.NoError(t, repo.CreateClient(context.Background(), &models.ApiClient{
		Name: "cli", OwnerID: "cli-user", ApiKey: testKey, IsActive: true, Permissions: []string{"*"},
	}))
	cat, err := catalog.NewDefault()
	require.NoError(t, err)

	engine := interview.NewEngine(repo, cat, interview.NewReferenceEvaluator())
	srv := httptest.NewServer(api.NewServer(config.ServerConfig{}, engine, cat, nil, repo).Router())
	t.Cleanup(srv.Close)
	return srv.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSessionWorkflow(t *testing.T) {
	url := newBackend(t)
	base := []string{"--server", url, "--api-key", testKey}

	out, err := run(t, append([]string{"sessions", "create", "--topic", "React", "--difficulty", "easy"}, base...)...)
	require.NoError(t, err, out)

	var created models.Session
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, models.DifficultyBeginner, created.Difficulty)
	assert.Equal(t, models.SessionInProgress, created.Status)

	answersFile := filepath.Join(t.TempDir(), "answers.yaml")
	require.NoError(t, os.WriteFile(answersFile, []byte("- Components are reusable pieces of UI.\n- null\n"), 0o644))

	out, err = run(t, append([]string{"sessions", "submit", created.ID, "--answers-file", answersFile}, base...)...)
	require.NoError(t, err, out)

	var completed models.Session
	require.NoError(t, json.Unmarshal([]byte(out), &completed))
	assert.Equal(t, models.SessionCompleted, completed.Status)
	require.NotNil(t, completed.Questions[0].Score)
	assert.Nil(t, completed.Questions[1].Score)

	out, err = run(t, append([]string{"sessions", "list", "--status", "completed"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, created.ID)
	assert.Contains(t, out, "completed")

	out, err = run(t, append([]string{"sessions", "delete", created.ID}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")

	_, err = run(t, append([]string{"sessions", "get", created.ID}, base...)...)
	assert.Error(t, err)
}

func TestCatalogCommands(t *testing.T) {
	url := newBackend(t)

	out, err := run(t, "catalog", "topics", "--server", url, "--api-key", testKey)
	require.NoError(t, err)
	assert.Contains(t, out, "JavaScript")

	out, err = run(t, "catalog", "challenges", "--server", url, "--api-key", testKey)
	require.NoError(t, err)
	assert.Contains(t, out, "DIFFICULTY")
}

func TestRequiresAPIKey(t *testing.T) {
	t.Setenv("PREPCTL_API_KEY", "")
	_, err := run(t, "sessions", "list", "--server", "http://127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestReadAnswersFileRejectsMapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("first: answer\n"), 0o644))

	_, err := readAnswersFile(path)
	assert.Error(t, err)
}
