package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes one chronicle invocation against db and returns stdout.
func runCLI(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CHRONICLE_LLM_PROVIDER", "none")
	t.Setenv("CHRONICLE_CONFIG", "")
	t.Setenv("CHRONICLE_CAMPAIGN_INBOX", filepath.Join(filepath.Dir(db), "inbox"))
	var out bytes.Buffer
	err := execute(context.Background(), &out, append([]string{"--db", db}, args...))
	return out.String(), err
}

func mustRun(t *testing.T, db string, args ...string) string {
	t.Helper()
	out, err := runCLI(t, db, args...)
	require.NoError(t, err, out)
	return out
}

func TestCLI_RecordRecallAcrossInvocations(t *testing.T) {
	db := filepath.Join(t.TempDir(), "data", "chronicle.db")

	mustRun(t, db, "record", "--weight", "0.9", "--themes", "betrayal", "party betrayed")
	mustRun(t, db, "record", "--weight", "0.1", "bought rope")
	mustRun(t, db, "record", "--weight", "0.5", "found a key")

	var res struct {
		Records []struct {
			Record struct {
				Content string `json:"content"`
			} `json:"record"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, db, "recall", "--limit", "3")), &res))
	require.Len(t, res.Records, 3)
	assert.Equal(t, "party betrayed", res.Records[0].Record.Content)
	assert.Equal(t, "found a key", res.Records[1].Record.Content)
	assert.Equal(t, "bought rope", res.Records[2].Record.Content)

	text := mustRun(t, db, "--format", "text", "recall", "betrayal")
	assert.Contains(t, text, "party betrayed")
	assert.NotContains(t, text, "rope")
}

func TestCLI_RecordInfersFacts(t *testing.T) {
	db := filepath.Join(t.TempDir(), "chronicle.db")
	out := mustRun(t, db, "record", "Oskar betrayed us at the Salt Gate")
	assert.Contains(t, out, "betrayal")
}

func TestCLI_RejectsBadWeight(t *testing.T) {
	db := filepath.Join(t.TempDir(), "chronicle.db")
	_, err := runCLI(t, db, "record", "--weight", "1.7", "too much")
	assert.Error(t, err)
}

func TestCLI_EventsAndResolve(t *testing.T) {
	db := filepath.Join(t.TempDir(), "chronicle.db")

	var res struct {
		Events []struct {
			ID string `json:"id"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, db, "events")), &res))
	require.NotEmpty(t, res.Events)

	out := mustRun(t, db, "--format", "text", "resolve", res.Events[0].ID, "the", "party", "rested")
	assert.Equal(t, "executed\n", out)

	_, err := runCLI(t, db, "resolve", "no-such-event", "anything")
	assert.Error(t, err)
}

func TestCLI_ArcsAndThreads(t *testing.T) {
	db := filepath.Join(t.TempDir(), "chronicle.db")

	arcID := strings.TrimSpace(mustRun(t, db, "-f", "text", "arc", "create", "--character", "mira", "--type", "redemption"))
	require.NotEmpty(t, arcID)
	mustRun(t, db, "arc", "milestone", arcID, "Mira", "returns", "the", "ledger", "--completion", "0.5")
	mustRun(t, db, "arc", "progress", arcID, "0", "1")
	assert.Contains(t, mustRun(t, db, "-f", "text", "arc", "list"), "100%")

	threadID := strings.TrimSpace(mustRun(t, db, "-f", "text", "thread", "open", "--type", "mystery", "-p", "8", "The", "drowned", "bell"))
	mustRun(t, db, "thread", "update", threadID, "A", "bell", "rang", "underwater")
	_, err := runCLI(t, db, "thread", "resolve", threadID, "The", "abbot", "rang", "it")
	assert.Error(t, err, "a resolution needs a documenting memory")
	memID := strings.TrimSpace(mustRun(t, db, "-f", "text", "record", "--weight", "0.7", "the abbot rang the drowned bell"))
	assert.Equal(t, "resolved\n", mustRun(t, db, "-f", "text", "thread", "resolve", threadID, "--memories", memID, "The", "abbot", "rang", "it"))

	_, err = runCLI(t, db, "thread", "open", "-p", "11", "Too", "urgent")
	assert.Error(t, err)
}

func TestCLI_ExportImport(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "chronicle.db")
	mustRun(t, db, "-c", "north", "record", "--weight", "0.8", "the king fell")

	yamlFile := filepath.Join(dir, "north.yaml")
	mustRun(t, db, "-c", "north", "export", "--format", "yaml", "-o", yamlFile)
	raw, err := os.ReadFile(yamlFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "campaign_id: north")

	other := filepath.Join(dir, "other.db")
	out := mustRun(t, other, "-f", "text", "import", yamlFile)
	assert.Contains(t, out, "imported north (1 memories")
	assert.Contains(t, mustRun(t, other, "-f", "text", "-c", "north", "recall"), "the king fell")
	assert.Contains(t, mustRun(t, other, "-f", "text", "campaigns"), "north")
}

func TestCLI_DaemonOnce(t *testing.T) {
	db := filepath.Join(t.TempDir(), "chronicle.db")
	mustRun(t, db, "-c", "north", "record", "--weight", "0.4", "a quiet night")
	mustRun(t, db, "-c", "south", "record", "--weight", "0.6", "a loud morning")

	var tick struct {
		Maintained map[string]any `json:"maintained"`
	}
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, db, "daemon", "--once")), &tick))
	assert.Contains(t, tick.Maintained, "north")
	assert.Contains(t, tick.Maintained, "south")
}

func TestCLI_PlayNeedsNarrator(t *testing.T) {
	db := filepath.Join(t.TempDir(), "chronicle.db")
	_, err := runCLI(t, db, "play")
	assert.ErrorContains(t, err, "LLM provider")
}

func TestCLI_UnknownFormat(t *testing.T) {
	db := filepath.Join(t.TempDir(), "chronicle.db")
	_, err := runCLI(t, db, "--format", "xml", "snapshot")
	assert.Error(t, err)
}

func TestCLI_BackupRestore(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "chronicle.db")
	archives := filepath.Join(dir, "backups")
	mustRun(t, db, "-c", "north", "record", "--weight", "0.8", "the king fell")

	path := strings.TrimSpace(mustRun(t, db, "-f", "text", "backup", "now", "--dir", archives))
	require.FileExists(t, path)
	assert.Contains(t, mustRun(t, db, "-f", "text", "backup", "list", "--dir", archives), path)

	other := filepath.Join(dir, "other.db")
	assert.Equal(t, "north\n", mustRun(t, other, "-f", "text", "backup", "restore", "--dir", archives, path))
	assert.Contains(t, mustRun(t, other, "-f", "text", "-c", "north", "recall"), "the king fell")
}

func TestCLI_SubmitThroughInbox(t *testing.T) {
	db := filepath.Join(t.TempDir(), "chronicle.db")
	path := strings.TrimSpace(mustRun(t, db, "-f", "text", "-c", "south", "submit", "--weight", "0.7", "--themes", "exile", "the exiles crossed the river"))
	require.FileExists(t, path)

	mustRun(t, db, "daemon", "--once")
	assert.NoFileExists(t, path)
	assert.Contains(t, mustRun(t, db, "-f", "text", "-c", "south", "recall", "exile"), "the exiles crossed the river")
}

func TestCLI_Notes(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "chronicle.db")
	vault := filepath.Join(dir, "vault")
	require.NoError(t, os.MkdirAll(vault, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(vault, "s1.md"), []byte("---\ncampaign: west\n---\n# Session 1\n\n[[Mira]] swore an oath at the shrine #loyalty\n\n- bought rope\n"), 0o600))

	var res struct {
		Files     int      `json:"files"`
		Entries   int      `json:"entries"`
		Campaigns []string `json:"campaigns"`
	}
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, db, "notes", vault)), &res))
	assert.Equal(t, 1, res.Files)
	assert.Equal(t, 2, res.Entries)
	assert.Equal(t, []string{"west"}, res.Campaigns)

	out := mustRun(t, db, "-f", "text", "-c", "west", "recall", "loyalty")
	assert.Contains(t, out, "Mira swore an oath")
}

func TestCLI_MCP(t *testing.T) {
	db := filepath.Join(t.TempDir(), "chronicle.db")
	t.Setenv("CHRONICLE_LLM_PROVIDER", "none")
	t.Setenv("CHRONICLE_CONFIG", "")

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"record_memory","arguments":{"content":"the lighthouse went dark","emotional_weight":0.6}}}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	a := &app{out: &out}
	root := newRootCommand(a)
	root.SetIn(strings.NewReader(in))
	root.SetArgs([]string{"--db", db, "-c", "coast", "mcp"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.NoError(t, a.close(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"serverInfo"`)
	assert.NotContains(t, lines[1], `"isError"`)

	assert.Contains(t, mustRun(t, db, "-f", "text", "-c", "coast", "recall"), "the lighthouse went dark")
}
