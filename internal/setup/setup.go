// Package setup registers the TimeForged MCP server with agent hosts.
//
// - Claude Code: runs `claude mcp add` at user scope
// - OpenCode: merges an entry into opencode.json (mcp.timeforged)
// - Gemini CLI: merges an entry into ~/.gemini/settings.json (mcpServers.timeforged)
package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/timeforged/timeforged-mcp/internal/config"
)

// serverKey is the name the MCP server is registered under in every host.
const serverKey = "timeforged"

var (
	runtimeGOOS   = runtime.GOOS
	userHomeDir   = os.UserHomeDir
	lookPathFn    = exec.LookPath
	executableFn  = os.Executable
	readFileFn    = os.ReadFile
	writeFileFn   = os.WriteFile
	mkdirAllFn    = os.MkdirAll
	jsonMarshalFn = json.MarshalIndent
	runCommand    = func(name string, args ...string) ([]byte, error) {
		return exec.Command(name, args...).CombinedOutput()
	}
)

// Agent represents a supported MCP host.
type Agent struct {
	Name        string
	Description string
	ConfigPath  string // resolved at runtime (display only for claude-code)
}

// Result holds the outcome of an installation.
type Result struct {
	Agent       string
	Destination string
	Files       int
}

// SupportedAgents returns the hosts Install knows how to configure.
func SupportedAgents() []Agent {
	return []Agent{
		{
			Name:        "claude-code",
			Description: "Claude Code - registered via `claude mcp add` (user scope)",
			ConfigPath:  "managed by claude CLI",
		},
		{
			Name:        "opencode",
			Description: "OpenCode - local MCP entry in opencode.json",
			ConfigPath:  openCodeConfigPath(),
		},
		{
			Name:        "gemini-cli",
			Description: "Gemini CLI - mcpServers entry in settings.json",
			ConfigPath:  geminiSettingsPath(),
		},
	}
}

// Install registers the adapter with agentName. Only non-default settings
// from cfg are written into the host's environment block.
func Install(agentName string, cfg config.Config) (*Result, error) {
	switch agentName {
	case "claude-code":
		return installClaudeCode(cfg)
	case "opencode":
		return installOpenCode(cfg)
	case "gemini-cli":
		return installGemini(cfg)
	default:
		return nil, fmt.Errorf("unknown agent: %q (supported: claude-code, opencode, gemini-cli)", agentName)
	}
}

// serverEnv returns the environment the host must pass to the adapter.
func serverEnv(cfg config.Config) map[string]string {
	env := map[string]string{}
	if cfg.ServerURL != "" && cfg.ServerURL != config.DefaultServerURL {
		env[config.EnvServerURL] = cfg.ServerURL
	}
	if cfg.APIKey != "" {
		env[config.EnvAPIKey] = cfg.APIKey
	}
	return env
}

func binaryPath() (string, error) {
	exe, err := executableFn()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

// ─── Claude Code ─────────────────────────────────────────────────────────────

func installClaudeCode(cfg config.Config) (*Result, error) {
	claudeBin, err := lookPathFn("claude")
	if err != nil {
		return nil, errors.New("claude CLI not found in PATH - install Claude Code first")
	}
	exe, err := binaryPath()
	if err != nil {
		return nil, err
	}

	args := []string{"mcp", "add", "--scope", "user"}
	env := serverEnv(cfg)
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+env[k])
	}
	args = append(args, serverKey, "--", exe, "mcp")

	out, err := runCommand(claudeBin, args...)
	outStr := strings.TrimSpace(string(out))
	if err != nil && !strings.Contains(outStr, "already exists") {
		return nil, fmt.Errorf("claude mcp add failed: %s", outStr)
	}

	return &Result{
		Agent:       "claude-code",
		Destination: "claude MCP registry (user scope)",
		Files:       0,
	}, nil
}

// ─── OpenCode ────────────────────────────────────────────────────────────────

func installOpenCode(cfg config.Config) (*Result, error) {
	exe, err := binaryPath()
	if err != nil {
		return nil, err
	}
	entry := map[string]any{
		"type":    "local",
		"command": []string{exe, "mcp"},
		"enabled": true,
	}
	if env := serverEnv(cfg); len(env) > 0 {
		entry["environment"] = env
	}

	path := openCodeConfigPath()
	if err := mergeJSONEntry(path, "mcp", entry); err != nil {
		return nil, err
	}
	return &Result{Agent: "opencode", Destination: path, Files: 1}, nil
}

func openCodeConfigPath() string {
	home, _ := userHomeDir()

	switch runtimeGOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "opencode", "opencode.json")
		}
		return filepath.Join(home, "AppData", "Roaming", "opencode", "opencode.json")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "opencode", "opencode.json")
		}
		return filepath.Join(home, ".config", "opencode", "opencode.json")
	}
}

// ─── Gemini CLI ──────────────────────────────────────────────────────────────

func installGemini(cfg config.Config) (*Result, error) {
	exe, err := binaryPath()
	if err != nil {
		return nil, err
	}
	entry := map[string]any{
		"command": exe,
		"args":    []string{"mcp"},
	}
	if env := serverEnv(cfg); len(env) > 0 {
		entry["env"] = env
	}

	path := geminiSettingsPath()
	if err := mergeJSONEntry(path, "mcpServers", entry); err != nil {
		return nil, err
	}
	return &Result{Agent: "gemini-cli", Destination: path, Files: 1}, nil
}

func geminiSettingsPath() string {
	home, _ := userHomeDir()
	return filepath.Join(home, ".gemini", "settings.json")
}

// ─── JSON config merge ───────────────────────────────────────────────────────

// mergeJSONEntry sets root[section][serverKey] = entry in the JSON file at
// path, keeping every other key. A missing file is created.
func mergeJSONEntry(path, section string, entry map[string]any) error {
	root := map[string]any{}

	raw, err := readFileFn(path)
	switch {
	case err == nil:
		if len(strings.TrimSpace(string(raw))) > 0 {
			if err := json.Unmarshal(raw, &root); err != nil {
				return fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("read config %s: %w", path, err)
	}

	servers := map[string]any{}
	if existing, ok := root[section]; ok {
		m, ok := existing.(map[string]any)
		if !ok {
			return fmt.Errorf("parse config %s: %q is not an object", path, section)
		}
		servers = m
	}
	servers[serverKey] = entry
	root[section] = servers

	out, err := jsonMarshalFn(root, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := mkdirAllFn(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := writeFileFn(path, append(out, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
