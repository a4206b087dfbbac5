package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/agent-router/application"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr).WithInput(strings.NewReader(stdin))
	err := app.ExecuteWithArgs(context.Background(), args)
	return stdout.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "router.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func sqliteConfig(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "router.db")
	return writeConfig(t, `
name: cli-test
logging:
  level: error
storage:
  conversations: sqlite
  knowledge: sqlite
  events: sqlite
  sqlite_path: `+db+`
`)
}

func TestApp_Version(t *testing.T) {
	output, err := runCLI(t, "", "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(output, "agent-router version") {
		t.Errorf("version output missing 'agent-router version', got: %s", output)
	}
}

func TestApp_Help(t *testing.T) {
	output, err := runCLI(t, "", "--help")
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}
	for _, want := range []string{"routes each user message", "chat", "serve", "mcp", "knowledge"} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q, got: %s", want, output)
		}
	}
}

func TestApp_Validate(t *testing.T) {
	path := writeConfig(t, `
name: test-router
orchestrator:
  max_concurrent: 3
`)
	output, err := runCLI(t, "", "validate", "-c", path)
	if err != nil {
		t.Fatalf("validate command failed: %v", err)
	}
	if !strings.Contains(output, "valid") {
		t.Errorf("validate output missing 'valid', got: %s", output)
	}
	if !strings.Contains(output, "Max concurrent subtasks: 3") {
		t.Errorf("validate output missing summary, got: %s", output)
	}
}

func TestApp_ValidateInvalid(t *testing.T) {
	path := writeConfig(t, `
name: test-router
storage:
  conversations: etcd
`)
	if _, err := runCLI(t, "", "validate", "-c", path); err == nil {
		t.Error("expected validation to fail for unknown backend")
	}
}

func TestApp_ValidateRequiresConfig(t *testing.T) {
	if _, err := runCLI(t, "", "validate"); err == nil {
		t.Error("expected error without -c")
	}
}

func TestApp_Inspect(t *testing.T) {
	path := writeConfig(t, `
name: inspect-me
llm:
  provider: openai
  api_key: secret
  model: gpt-4o-mini
`)
	output, err := runCLI(t, "", "inspect", "-c", path, "--section", "llm", "--json")
	if err != nil {
		t.Fatalf("inspect command failed: %v", err)
	}
	if strings.Contains(output, "secret") {
		t.Errorf("inspect leaked the api key: %s", output)
	}
	if !strings.Contains(output, "gpt-4o-mini") {
		t.Errorf("inspect output missing model, got: %s", output)
	}

	if _, err := runCLI(t, "", "inspect", "--section", "nope"); err == nil {
		t.Error("expected error for unknown section")
	}
}

func TestApp_ChatJSON(t *testing.T) {
	output, err := runCLI(t, "", "chat", "--conversation", "c1", "--json", "你好")
	if err != nil {
		t.Fatalf("chat command failed: %v", err)
	}

	var resp application.Response
	if err := json.Unmarshal([]byte(output), &resp); err != nil {
		t.Fatalf("chat output is not a response: %v\n%s", err, output)
	}
	if resp.ConversationID != "c1" {
		t.Errorf("ConversationID = %q, want c1", resp.ConversationID)
	}
	if resp.Response == "" {
		t.Error("expected a non-empty answer")
	}
}

func TestApp_ChatSession(t *testing.T) {
	output, err := runCLI(t, "你好\n\n谢谢\n/exit\nnever sent\n", "chat", "--conversation", "repl")
	if err != nil {
		t.Fatalf("chat session failed: %v", err)
	}
	if !strings.Contains(output, "Conversation repl") {
		t.Errorf("session banner missing, got: %s", output)
	}
	if got := strings.Count(output, "> "); got != 4 {
		t.Errorf("prompt count = %d, want 4", got)
	}
}

func TestApp_KnowledgeRoundTrip(t *testing.T) {
	path := sqliteConfig(t)

	output, err := runCLI(t, "Beijing hotels near Wangfujing are close to the Forbidden City.", "knowledge", "add", "-c", path, "--title", "hotels", "-")
	if err != nil {
		t.Fatalf("knowledge add failed: %v", err)
	}
	if !strings.Contains(output, "Added document") {
		t.Errorf("add output missing confirmation, got: %s", output)
	}

	output, err = runCLI(t, "", "knowledge", "search", "-c", path, "Wangfujing hotels")
	if err != nil {
		t.Fatalf("knowledge search failed: %v", err)
	}
	if !strings.Contains(output, "hotels") {
		t.Errorf("search did not find the document, got: %s", output)
	}
}

func TestApp_HistoryAndClose(t *testing.T) {
	path := sqliteConfig(t)

	if _, err := runCLI(t, "", "history", "-c", path, "c1"); err == nil {
		t.Error("expected error for unknown conversation")
	}

	if _, err := runCLI(t, "", "chat", "-c", path, "--conversation", "c1", "你好"); err != nil {
		t.Fatalf("chat failed: %v", err)
	}

	output, err := runCLI(t, "", "history", "-c", path, "c1")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(output, "Conversation c1 (1 turns)") {
		t.Errorf("history output = %s", output)
	}

	output, err = runCLI(t, "", "history", "-c", path, "--turns", "--json", "c1")
	if err != nil {
		t.Fatalf("history --turns failed: %v", err)
	}
	var turns []application.TurnRecord
	if err := json.Unmarshal([]byte(output), &turns); err != nil {
		t.Fatalf("turns output is not JSON: %v\n%s", err, output)
	}
	if len(turns) != 1 {
		t.Errorf("len(turns) = %d, want 1", len(turns))
	}

	if _, err := runCLI(t, "", "close", "-c", path, "c1"); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := runCLI(t, "", "history", "-c", path, "c1"); err == nil {
		t.Error("expected error after close")
	}
}
