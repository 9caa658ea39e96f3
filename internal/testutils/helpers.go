package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/stretchr/testify/require"
)

// SetupTestRepo creates a temporary directory and initializes a Loam repository in it.
// It returns the absolute path to the temp dir and the initialized repository.
// It fails the test immediately on error.
func SetupTestRepo(t *testing.T, opts ...loam.Option) (string, core.Repository) {
	t.Helper()

	absPath, err := filepath.Abs(t.TempDir())
	require.NoError(t, err, "Failed to get absolute path for temp dir")

	repo, err := loam.Init(absPath, opts...)
	require.NoError(t, err, "Failed to init loam repo")

	return absPath, repo
}

// WriteTree writes files (relative slash paths to contents) under root,
// creating intermediate directories.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

// GreetingTree is a minimal configuration with the greeting dialog.
var GreetingTree = map[string]string{
	"Steps/name.json": `{
  "name": "name",
  "prompt": "What is your name?",
  "retry_prompt": "Sorry, what was your name?",
  "type": "string",
  "model": {"name": "greetingModel", "matching_entities": ["personName"]},
  "telemetry": [{"custom_event_name": "NameCollected", "fields": ["Activity.Text as text", "Step.Name"]}]
}`,
	"Steps/age.yaml": `name: age
prompt: How old are you?
retry_prompt: Please enter your age as a number.
type: int
`,
	"Steps/confirm.json": `{
  "name": "confirm",
  "prompt": "Please confirm your details.",
  "type": "adaptive_card"
}`,
	"greeting/greeting.json": `{
  "prompts": ["name", "age", "confirm"],
  "dispatch_intents": ["Greeting"],
  "telemetry": [{"custom_event_name": "GreetingCompleted", "fields": ["Conversation.Id"]}]
}`,
}
