package setup

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/timeforged/timeforged-mcp/internal/config"
)

func resetSetupSeams(t *testing.T) {
	t.Helper()
	oldRuntimeGOOS := runtimeGOOS
	oldUserHomeDir := userHomeDir
	oldLookPathFn := lookPathFn
	oldExecutableFn := executableFn
	oldReadFileFn := readFileFn
	oldWriteFileFn := writeFileFn
	oldMkdirAllFn := mkdirAllFn
	oldJSONMarshalFn := jsonMarshalFn
	oldRunCommand := runCommand

	t.Cleanup(func() {
		runtimeGOOS = oldRuntimeGOOS
		userHomeDir = oldUserHomeDir
		lookPathFn = oldLookPathFn
		executableFn = oldExecutableFn
		readFileFn = oldReadFileFn
		writeFileFn = oldWriteFileFn
		mkdirAllFn = oldMkdirAllFn
		jsonMarshalFn = oldJSONMarshalFn
		runCommand = oldRunCommand
	})

	executableFn = func() (string, error) { return "/usr/local/bin/timeforged-mcp", nil }
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("APPDATA", "")
}

func useTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	userHomeDir = func() (string, error) { return home, nil }
	return home
}

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return out
}

func TestSupportedAgents(t *testing.T) {
	var names []string
	for _, a := range SupportedAgents() {
		names = append(names, a.Name)
	}
	if got := strings.Join(names, ","); got != "claude-code,opencode,gemini-cli" {
		t.Fatalf("unexpected agents: %s", got)
	}
}

func TestInstallUnknownAgent(t *testing.T) {
	_, err := Install("vim", config.DefaultConfig())
	if err == nil || !strings.Contains(err.Error(), "unknown agent") {
		t.Fatalf("expected unknown agent error, got %v", err)
	}
}

func TestInstallClaudeCodeBranches(t *testing.T) {
	t.Run("claude missing", func(t *testing.T) {
		resetSetupSeams(t)
		lookPathFn = func(string) (string, error) { return "", errors.New("not found") }

		if _, err := Install("claude-code", config.DefaultConfig()); err == nil {
			t.Fatalf("expected error when claude is missing")
		}
	})

	t.Run("registers with env", func(t *testing.T) {
		resetSetupSeams(t)
		lookPathFn = func(string) (string, error) { return "/bin/claude", nil }

		var gotName string
		var gotArgs []string
		runCommand = func(name string, args ...string) ([]byte, error) {
			gotName, gotArgs = name, args
			return []byte("Added stdio MCP server timeforged"), nil
		}

		cfg := config.DefaultConfig()
		cfg.ServerURL = "http://tf.internal:6175"
		cfg.APIKey = "tf_secret"

		res, err := Install("claude-code", cfg)
		if err != nil {
			t.Fatalf("install: %v", err)
		}
		if res.Agent != "claude-code" || res.Files != 0 {
			t.Fatalf("unexpected result: %+v", res)
		}
		if gotName != "/bin/claude" {
			t.Fatalf("ran %q", gotName)
		}
		want := "mcp add --scope user -e TF_API_KEY=tf_secret -e TF_SERVER_URL=http://tf.internal:6175 timeforged -- /usr/local/bin/timeforged-mcp mcp"
		if got := strings.Join(gotArgs, " "); got != want {
			t.Fatalf("args = %q\nwant   %q", got, want)
		}
	})

	t.Run("default config passes no env", func(t *testing.T) {
		resetSetupSeams(t)
		lookPathFn = func(string) (string, error) { return "/bin/claude", nil }

		var gotArgs []string
		runCommand = func(_ string, args ...string) ([]byte, error) {
			gotArgs = args
			return nil, nil
		}

		if _, err := Install("claude-code", config.DefaultConfig()); err != nil {
			t.Fatalf("install: %v", err)
		}
		for _, a := range gotArgs {
			if a == "-e" {
				t.Fatalf("unexpected env flag in %v", gotArgs)
			}
		}
	})

	t.Run("already registered is ok", func(t *testing.T) {
		resetSetupSeams(t)
		lookPathFn = func(string) (string, error) { return "/bin/claude", nil }
		runCommand = func(string, ...string) ([]byte, error) {
			return []byte("MCP server timeforged already exists in user config"), errors.New("exit status 1")
		}

		if _, err := Install("claude-code", config.DefaultConfig()); err != nil {
			t.Fatalf("expected already-exists to succeed, got %v", err)
		}
	})

	t.Run("command failure", func(t *testing.T) {
		resetSetupSeams(t)
		lookPathFn = func(string) (string, error) { return "/bin/claude", nil }
		runCommand = func(string, ...string) ([]byte, error) {
			return []byte("permission denied"), errors.New("exit status 1")
		}

		_, err := Install("claude-code", config.DefaultConfig())
		if err == nil || !strings.Contains(err.Error(), "permission denied") {
			t.Fatalf("expected command output in error, got %v", err)
		}
	})

	t.Run("executable lookup fails", func(t *testing.T) {
		resetSetupSeams(t)
		lookPathFn = func(string) (string, error) { return "/bin/claude", nil }
		executableFn = func() (string, error) { return "", errors.New("no exe") }

		if _, err := Install("claude-code", config.DefaultConfig()); err == nil {
			t.Fatalf("expected executable error")
		}
	})
}

func TestInstallOpenCodeWritesMCPEntry(t *testing.T) {
	resetSetupSeams(t)
	home := useTestHome(t)
	runtimeGOOS = "linux"

	cfg := config.DefaultConfig()
	cfg.APIKey = "tf_secret"

	res, err := Install("opencode", cfg)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	path := filepath.Join(home, ".config", "opencode", "opencode.json")
	if res.Destination != path || res.Files != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	root := readJSON(t, path)
	mcp, _ := root["mcp"].(map[string]any)
	entry, _ := mcp["timeforged"].(map[string]any)
	if entry["type"] != "local" || entry["enabled"] != true {
		t.Fatalf("unexpected entry: %v", entry)
	}
	cmd, _ := entry["command"].([]any)
	if len(cmd) != 2 || cmd[0] != "/usr/local/bin/timeforged-mcp" || cmd[1] != "mcp" {
		t.Fatalf("unexpected command: %v", cmd)
	}
	env, _ := entry["environment"].(map[string]any)
	if env["TF_API_KEY"] != "tf_secret" {
		t.Fatalf("unexpected environment: %v", env)
	}
	if _, ok := env["TF_SERVER_URL"]; ok {
		t.Fatalf("default server url should not be written: %v", env)
	}
}

func TestInstallOpenCodePreservesExistingAndIsIdempotent(t *testing.T) {
	resetSetupSeams(t)
	home := useTestHome(t)
	runtimeGOOS = "linux"

	path := filepath.Join(home, ".config", "opencode", "opencode.json")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	existing := `{"theme":"dark","mcp":{"other":{"type":"remote","url":"https://x"}}}`
	if err := os.WriteFile(path, []byte(existing), 0644); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if _, err := Install("opencode", config.DefaultConfig()); err != nil {
			t.Fatalf("install #%d: %v", i+1, err)
		}
	}

	root := readJSON(t, path)
	if root["theme"] != "dark" {
		t.Fatalf("theme lost: %v", root)
	}
	mcp, _ := root["mcp"].(map[string]any)
	if len(mcp) != 2 || mcp["other"] == nil || mcp["timeforged"] == nil {
		t.Fatalf("unexpected mcp section: %v", mcp)
	}
	entry, _ := mcp["timeforged"].(map[string]any)
	if _, ok := entry["environment"]; ok {
		t.Fatalf("default config should not write environment: %v", entry)
	}
}

func TestInstallGeminiWritesMCPServers(t *testing.T) {
	resetSetupSeams(t)
	home := useTestHome(t)

	cfg := config.DefaultConfig()
	cfg.ServerURL = "http://10.0.0.5:6175"

	res, err := Install("gemini-cli", cfg)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	path := filepath.Join(home, ".gemini", "settings.json")
	if res.Destination != path {
		t.Fatalf("destination = %q", res.Destination)
	}

	root := readJSON(t, path)
	servers, _ := root["mcpServers"].(map[string]any)
	entry, _ := servers["timeforged"].(map[string]any)
	if entry["command"] != "/usr/local/bin/timeforged-mcp" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	args, _ := entry["args"].([]any)
	if len(args) != 1 || args[0] != "mcp" {
		t.Fatalf("unexpected args: %v", args)
	}
	env, _ := entry["env"].(map[string]any)
	if env["TF_SERVER_URL"] != "http://10.0.0.5:6175" {
		t.Fatalf("unexpected env: %v", env)
	}
}

func TestMergeJSONEntryErrors(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		resetSetupSeams(t)
		readFileFn = func(string) ([]byte, error) { return []byte("{not json"), nil }

		err := mergeJSONEntry("/x/config.json", "mcp", map[string]any{})
		if err == nil || !strings.Contains(err.Error(), "parse config") {
			t.Fatalf("expected parse error, got %v", err)
		}
	})

	t.Run("section is not an object", func(t *testing.T) {
		resetSetupSeams(t)
		readFileFn = func(string) ([]byte, error) { return []byte(`{"mcp":[1,2]}`), nil }

		err := mergeJSONEntry("/x/config.json", "mcp", map[string]any{})
		if err == nil || !strings.Contains(err.Error(), "not an object") {
			t.Fatalf("expected shape error, got %v", err)
		}
	})

	t.Run("read failure", func(t *testing.T) {
		resetSetupSeams(t)
		readFileFn = func(string) ([]byte, error) { return nil, os.ErrPermission }

		err := mergeJSONEntry("/x/config.json", "mcp", map[string]any{})
		if err == nil || !strings.Contains(err.Error(), "read config") {
			t.Fatalf("expected read error, got %v", err)
		}
	})

	t.Run("marshal failure", func(t *testing.T) {
		resetSetupSeams(t)
		readFileFn = func(string) ([]byte, error) { return nil, os.ErrNotExist }
		jsonMarshalFn = func(any, string, string) ([]byte, error) { return nil, errors.New("boom") }

		err := mergeJSONEntry("/x/config.json", "mcp", map[string]any{})
		if err == nil || !strings.Contains(err.Error(), "encode config") {
			t.Fatalf("expected encode error, got %v", err)
		}
	})

	t.Run("mkdir failure", func(t *testing.T) {
		resetSetupSeams(t)
		readFileFn = func(string) ([]byte, error) { return nil, os.ErrNotExist }
		mkdirAllFn = func(string, os.FileMode) error { return errors.New("read-only fs") }

		err := mergeJSONEntry("/x/config.json", "mcp", map[string]any{})
		if err == nil || !strings.Contains(err.Error(), "create config dir") {
			t.Fatalf("expected mkdir error, got %v", err)
		}
	})

	t.Run("write failure", func(t *testing.T) {
		resetSetupSeams(t)
		readFileFn = func(string) ([]byte, error) { return []byte("  "), nil }
		mkdirAllFn = func(string, os.FileMode) error { return nil }
		writeFileFn = func(string, []byte, os.FileMode) error { return errors.New("disk full") }

		err := mergeJSONEntry("/x/config.json", "mcp", map[string]any{})
		if err == nil || !strings.Contains(err.Error(), "disk full") {
			t.Fatalf("expected write error, got %v", err)
		}
	})
}

func TestOpenCodeConfigPathAcrossOSVariants(t *testing.T) {
	resetSetupSeams(t)
	home := useTestHome(t)

	runtimeGOOS = "linux"
	if got := openCodeConfigPath(); got != filepath.Join(home, ".config", "opencode", "opencode.json") {
		t.Fatalf("linux path = %q", got)
	}

	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := openCodeConfigPath(); got != filepath.Join("/xdg", "opencode", "opencode.json") {
		t.Fatalf("xdg path = %q", got)
	}

	runtimeGOOS = "windows"
	if got := openCodeConfigPath(); got != filepath.Join(home, "AppData", "Roaming", "opencode", "opencode.json") {
		t.Fatalf("windows fallback path = %q", got)
	}

	t.Setenv("APPDATA", "/appdata")
	if got := openCodeConfigPath(); got != filepath.Join("/appdata", "opencode", "opencode.json") {
		t.Fatalf("windows appdata path = %q", got)
	}
}
