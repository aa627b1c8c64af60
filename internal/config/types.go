package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/docker/go-units"
)

const (
	// DefaultControlAddr is the loopback endpoint of the control server.
	DefaultControlAddr = "127.0.0.1:9001"

	// ReservedName addresses every program in control requests and cannot be
	// used as a program name.
	ReservedName = "all"
)

// Config mirrors the supervisor configuration document.
type Config struct {
	Control  Control             `yaml:"control" toml:"control"`
	Logging  Logging             `yaml:"logging" toml:"logging"`
	Group    Group               `yaml:"group" toml:"group"`
	Programs map[string]*Program `yaml:"programs" toml:"programs"`

	// Path is the absolute location the document was loaded from.
	Path string `yaml:"-" toml:"-"`
}

// Control configures the remote-control endpoint.
type Control struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// Logging configures the supervisor's own log output.
type Logging struct {
	Level   string            `yaml:"level" toml:"level"`
	Format  string            `yaml:"format" toml:"format"`
	Modules map[string]string `yaml:"modules" toml:"modules"`

	File         string   `yaml:"file" toml:"file"`
	FileMaxBytes ByteSize `yaml:"file_maxbytes" toml:"file_maxbytes"`
	FileBackups  int      `yaml:"file_backups" toml:"file_backups"`
}

// Group configures the process group container.
type Group struct {
	Cgroup string `yaml:"cgroup" toml:"cgroup"`
}

// Program is the static definition of one supervised program. It is never
// mutated after Load returns.
type Program struct {
	Name string `yaml:"-" toml:"-"`

	Command     string            `yaml:"command" toml:"command"`
	Directory   string            `yaml:"directory" toml:"directory"`
	Environment map[string]string `yaml:"environment" toml:"environment"`
	EnvFile     string            `yaml:"env_file" toml:"env_file"`

	Autostart   bool `yaml:"autostart" toml:"autostart"`
	Autorestart bool `yaml:"autorestart" toml:"autorestart"`

	StdoutLogfile         string   `yaml:"stdout_logfile" toml:"stdout_logfile"`
	StdoutLogfileMaxBytes ByteSize `yaml:"stdout_logfile_maxbytes" toml:"stdout_logfile_maxbytes"`
	StdoutLogfileBackups  int      `yaml:"stdout_logfile_backups" toml:"stdout_logfile_backups"`
	StderrLogfile         string   `yaml:"stderr_logfile" toml:"stderr_logfile"`
	StderrLogfileMaxBytes ByteSize `yaml:"stderr_logfile_maxbytes" toml:"stderr_logfile_maxbytes"`
	StderrLogfileBackups  int      `yaml:"stderr_logfile_backups" toml:"stderr_logfile_backups"`
	RedirectStderr        bool     `yaml:"redirect_stderr" toml:"redirect_stderr"`

	// Args is Command tokenized with SplitCommand.
	Args []string `yaml:"-" toml:"-"`
}

// ByteSize is a size in bytes that accepts human readable values such as
// "50MB" (binary multiples, as supervisord interprets them).
type ByteSize int64

// UnmarshalText parses a size, accepting empty strings as zero.
func (b *ByteSize) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*b = 0
		return nil
	}
	n, err := units.RAMInBytes(raw)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", raw, err)
	}
	*b = ByteSize(n)
	return nil
}

// MarshalText renders the size in binary units.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(units.BytesSize(float64(b))), nil
}

// ProgramsSorted returns the defined programs ordered by name.
func (c *Config) ProgramsSorted() []*Program {
	names := make([]string, 0, len(c.Programs))
	for name, prog := range c.Programs {
		if prog == nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Program, 0, len(names))
	for _, name := range names {
		out = append(out, c.Programs[name])
	}
	return out
}

// EnvironmentList renders the program environment as KEY=VALUE pairs in a
// stable order.
func (p *Program) EnvironmentList() []string {
	if len(p.Environment) == 0 {
		return nil
	}
	keys := make([]string, 0, len(p.Environment))
	for k := range p.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+p.Environment[k])
	}
	return out
}

func fieldPath(parts ...string) string {
	return strings.Join(parts, ".")
}

func programField(program string, parts ...string) string {
	pathParts := append([]string{"programs", program}, parts...)
	return fieldPath(pathParts...)
}
