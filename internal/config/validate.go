package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
)

var (
	validLevels  = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "warning": {}, "error": {}}
	validFormats = map[string]struct{}{"text": {}, "json": {}}
)

// ApplyDefaults fills in values the document left empty.
func (c *Config) ApplyDefaults() error {
	if strings.TrimSpace(c.Control.Addr) == "" {
		c.Control.Addr = DefaultControlAddr
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Programs == nil {
		c.Programs = map[string]*Program{}
	}
	return nil
}

// Validate enforces document invariants.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Control.Addr); err != nil {
		return fmt.Errorf("%s: invalid address %q: %w", fieldPath("control", "addr"), c.Control.Addr, err)
	}
	if _, ok := validLevels[c.Logging.Level]; !ok {
		return fmt.Errorf("%s: unknown level %q", fieldPath("logging", "level"), c.Logging.Level)
	}
	if _, ok := validFormats[c.Logging.Format]; !ok {
		return fmt.Errorf("%s: unknown format %q", fieldPath("logging", "format"), c.Logging.Format)
	}
	for module, level := range c.Logging.Modules {
		if _, ok := validLevels[strings.ToLower(level)]; !ok {
			return fmt.Errorf("%s: unknown level %q", fieldPath("logging", "modules", module), level)
		}
	}
	if c.Group.Cgroup != "" && !filepath.IsAbs(c.Group.Cgroup) {
		return fmt.Errorf("%s: must be an absolute path", fieldPath("group", "cgroup"))
	}

	var errs []error
	for _, prog := range c.ProgramsSorted() {
		if err := prog.validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Program) validate() error {
	name := p.Name
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%s: program name is empty", fieldPath("programs"))
	}
	if strings.EqualFold(name, ReservedName) {
		return fmt.Errorf("%s: %q is reserved", programField(name), ReservedName)
	}
	if strings.ContainsAny(name, "/ \t") {
		return fmt.Errorf("%s: name must not contain whitespace or '/'", programField(name))
	}
	if strings.TrimSpace(p.Command) == "" || len(p.Args) == 0 {
		return fmt.Errorf("%s: is required", programField(name, "command"))
	}
	if p.StdoutLogfileMaxBytes < 0 {
		return fmt.Errorf("%s: must be non-negative", programField(name, "stdout_logfile_maxbytes"))
	}
	if p.StderrLogfileMaxBytes < 0 {
		return fmt.Errorf("%s: must be non-negative", programField(name, "stderr_logfile_maxbytes"))
	}
	if p.StdoutLogfileBackups < 0 {
		return fmt.Errorf("%s: must be non-negative", programField(name, "stdout_logfile_backups"))
	}
	if p.StderrLogfileBackups < 0 {
		return fmt.Errorf("%s: must be non-negative", programField(name, "stderr_logfile_backups"))
	}
	return nil
}
