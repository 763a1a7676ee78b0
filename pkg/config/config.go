// Package config loads agent configuration from JSON5-lite files (C14):
// plain JSON preceded by optional "//" line comments and "#include" file
// directives, searched for across a fixed set of directories the same way
// across every predefined filename.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dimas/pkg/logx"
)

// Session names one transport session: which protocol binding to use, an
// optional human-readable name, and the raw options blob passed through to
// that binding unparsed (a NATS URL plus connection options, today).
type Session struct {
	Protocol string          `json:"protocol"`
	Name     string          `json:"name"`
	Config   json.RawMessage `json:"config"`
}

// Config is the root of a loaded configuration file: a default session plus
// any number of additional named sessions, mirroring the Context session
// registry (spec.md §6).
type Config struct {
	Default  Session   `json:"default"`
	Sessions []Session `json:"sessions,omitempty"`
}

// defaultConfig is returned whenever no default.json5 can be found or
// parsed; it describes a bare NATS connection to the local default port.
func defaultConfig() *Config {
	return &Config{
		Default: Session{
			Protocol: "nats",
			Name:     "default",
			Config:   json.RawMessage(`{"url":"nats://127.0.0.1:4222"}`),
		},
	}
}

// Default loads "default.json5" from the search path. Unlike the other
// loaders it never errors: a missing or unparseable file is logged and a
// bare default configuration is returned instead, matching the search-once,
// degrade-gracefully behavior agents rely on at startup.
func Default() *Config {
	path, err := findConfigFile("default.json5")
	if err != nil {
		logx.Debugf("config: %s, using default configuration instead", err)
		return defaultConfig()
	}
	cfg, err := loadFile(path)
	if err != nil {
		logx.Debugf("config: %s, using default configuration instead", err)
		return defaultConfig()
	}
	return cfg
}

// Local loads "local.json5": a configuration that only reaches entities on
// the same host.
func Local() (*Config, error) { return FromFile("local.json5") }

// Peer loads "peer.json5": a configuration that starts the session in peer
// mode.
func Peer() (*Config, error) { return FromFile("peer.json5") }

// Client loads "client.json5": a configuration that starts the session in
// client mode, connecting to a router.
func Client() (*Config, error) { return FromFile("client.json5") }

// Router loads "router.json5": a configuration for a routing session.
func Router() (*Config, error) { return FromFile("router.json5") }

// FromFile loads the named file from the search path.
func FromFile(filename string) (*Config, error) {
	path, err := findConfigFile(filename)
	if err != nil {
		return nil, err
	}
	return loadFile(path)
}

func loadFile(path string) (*Config, error) {
	content, err := readConfigFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// findConfigFile searches, in order, the current working directory, its
// .config subdirectory, the user's home .config/dimas, and the OS config
// directory's dimas subfolder. The original additionally distinguishes a
// "local" from a "roaming" OS config directory on Windows; Go's
// os.UserConfigDir returns a single directory regardless of platform, so
// those two search locations collapse into one here.
func findConfigFile(filename string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("finding %s: %w", filename, err)
	}

	candidates := []string{
		filepath.Join(cwd, filename),
		filepath.Join(cwd, ".config", filename),
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "dimas", filename))
	}
	if cfgDir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(cfgDir, "dimas", filename))
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("%s not found in any of %v", filename, candidates)
}

// readConfigFile reads path, strips "//" line comments, and resolves
// "#include \"other.json5\"" directives recursively (relative to the
// including file's directory when the include path is relative). seen
// tracks the chain of files already being read, breaking cycles the
// original parser does not guard against — a deliberate addition, since an
// include cycle there would simply recurse until the process runs out of
// stack.
func readConfigFile(path string, seen map[string]bool) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen == nil {
		seen = make(map[string]bool)
	}
	if seen[abs] {
		return nil, fmt.Errorf("include cycle at %s", abs)
	}
	seen[abs] = true

	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}

	var out strings.Builder
	dir := filepath.Dir(abs)
	for _, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		if inc, ok := strings.CutPrefix(trimmed, "#include"); ok {
			incPath := strings.Trim(strings.TrimSpace(inc), `"`)
			if !filepath.IsAbs(incPath) {
				incPath = filepath.Join(dir, incPath)
			}
			included, err := readConfigFile(incPath, seen)
			if err != nil {
				return nil, fmt.Errorf("including %s: %w", incPath, err)
			}
			out.Write(included)
			out.WriteByte('\n')
			continue
		}
		out.WriteString(stripLineComment(line))
		out.WriteByte('\n')
	}
	return []byte(out.String()), nil
}

// stripLineComment truncates line at its first "//" that falls outside a
// JSON string literal, so a value like "nats://127.0.0.1:4222" survives
// untouched while a genuine trailing comment is still removed.
func stripLineComment(line string) string {
	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return line[:i]
		}
	}
	return line
}
