package lib

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/shlex"
)

const (
	// DefaultConfigPath is where the supervised command is described.
	DefaultConfigPath = "/etc/minit.json"

	// Legacy overrides: a whole command line and a single entrypoint binary.
	CmdEnv        = "MINIT_CMD"
	EntrypointEnv = "MINIT_ENTRYPOINT_PATH"
)

var ErrNoCommand = errors.New("no command configured")

// Argv is a command vector. In JSON it is either an array of arguments or a
// single string split with shell quoting rules.
type Argv []string

func (a *Argv) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*a = list
		return nil
	}

	var line string
	if err := json.Unmarshal(b, &line); err != nil {
		return fmt.Errorf("command must be a string or an array of strings")
	}
	args, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("split command %q: %w", line, err)
	}
	*a = args
	return nil
}

type SystemConfig struct {
	Entrypoint  Argv              `json:"entrypoint,omitempty"`
	Cmd         Argv              `json:"cmd"`
	Environment map[string]string `json:"environment,omitempty"`

	// host preparation, all off by default
	RemountRootRW bool `json:"remount_root_rw,omitempty"`
	Loopback      bool `json:"loopback,omitempty"`
	Subreaper     bool `json:"subreaper,omitempty"`
}

// LoadConfig reads and validates the configuration file at path. A missing
// file is an error: there is nothing to supervise without it.
func LoadConfig(path string) (*SystemConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	defer f.Close()

	cfg, err := ParseConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func ParseConfig(r io.Reader) (*SystemConfig, error) {
	var cfg SystemConfig
	dec := json.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	// the file holds exactly one document
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		return nil, fmt.Errorf("failed to parse configuration: trailing data after the document")
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if len(cfg.Cmd) == 0 {
		return nil, ErrNoCommand
	}
	return &cfg, nil
}

func (c *SystemConfig) applyEnv() error {
	if line, ok := os.LookupEnv(CmdEnv); ok && line != "" {
		args, err := shlex.Split(line)
		if err != nil {
			return fmt.Errorf("%s: %w", CmdEnv, err)
		}
		c.Cmd = args
	}
	if path, ok := os.LookupEnv(EntrypointEnv); ok && path != "" {
		c.Entrypoint = Argv{path}
	}
	return nil
}

// Command is the argv of the supervised child: the entrypoint, when set,
// followed by cmd.
func (c *SystemConfig) Command() []string {
	argv := make([]string, 0, len(c.Entrypoint)+len(c.Cmd))
	argv = append(argv, c.Entrypoint...)
	return append(argv, c.Cmd...)
}

// Environ overlays the configured environment on base. Existing keys keep
// their position; new keys are appended in sorted order.
func (c *SystemConfig) Environ(base []string) []string {
	env := make([]string, 0, len(base)+len(c.Environment))
	seen := make(map[string]bool, len(c.Environment))

	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if v, ok := c.Environment[key]; ok {
			env = append(env, key+"="+v)
			seen[key] = true
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(c.Environment))
	for k := range c.Environment {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+c.Environment[k])
	}
	return env
}
