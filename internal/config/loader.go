package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// LoadError reports a configuration file that could not be read or is
// invalid.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load reads a supervisor configuration from the provided path. Files ending
// in .toml are parsed as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, &LoadError{Path: absPath, Err: fmt.Errorf("open config file: %w", err)}
	}

	doc, err := decode(absPath, data)
	if err != nil {
		return nil, &LoadError{Path: absPath, Err: err}
	}
	doc.Path = absPath

	if err := doc.resolve(filepath.Dir(absPath)); err != nil {
		return nil, &LoadError{Path: absPath, Err: err}
	}
	if err := doc.ApplyDefaults(); err != nil {
		return nil, &LoadError{Path: absPath, Err: err}
	}
	if err := doc.Validate(); err != nil {
		return nil, &LoadError{Path: absPath, Err: err}
	}
	return doc, nil
}

func decode(path string, data []byte) (*Config, error) {
	var (
		raw map[string]any
		doc Config
	)
	if isTOML(path) {
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		if err := validateAgainstSchema(raw); err != nil {
			return nil, err
		}
		decoder := toml.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		return &doc, nil
	}

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := validateAgainstSchema(raw); err != nil {
		return nil, err
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &doc, nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// resolve expands placeholders, tokenizes commands and anchors relative paths
// at the configuration directory.
func (c *Config) resolve(baseDir string) error {
	c.Control.Addr = ExpandEnv(c.Control.Addr)
	c.Group.Cgroup = ExpandEnv(c.Group.Cgroup)
	c.Logging.File = resolvePath(baseDir, ExpandEnv(c.Logging.File))

	for name, prog := range c.Programs {
		if prog == nil {
			// Empty sections are ignored rather than rejected.
			delete(c.Programs, name)
			continue
		}
		prog.Name = name
		prog.Command = ExpandEnv(prog.Command)
		prog.Directory = resolvePath(baseDir, ExpandEnv(prog.Directory))
		prog.StdoutLogfile = resolvePath(baseDir, ExpandEnv(prog.StdoutLogfile))
		prog.StderrLogfile = resolvePath(baseDir, ExpandEnv(prog.StderrLogfile))

		var merged map[string]string
		if prog.EnvFile != "" {
			prog.EnvFile = resolvePath(baseDir, ExpandEnv(prog.EnvFile))
			fileEnv, err := loadEnvFile(prog.EnvFile)
			if err != nil {
				return fmt.Errorf("%s: %w", programField(name, "env_file"), err)
			}
			merged = fileEnv
		}
		if len(prog.Environment) > 0 {
			if merged == nil {
				merged = make(map[string]string, len(prog.Environment))
			}
			for k, v := range prog.Environment {
				merged[k] = ExpandEnv(v)
			}
		}
		prog.Environment = merged

		args, err := SplitCommand(prog.Command)
		if err != nil {
			return fmt.Errorf("%s: %w", programField(name, "command"), err)
		}
		prog.Args = args
	}
	return nil
}

func resolvePath(base, path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(base, path))
}

func loadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	values := make(map[string]string)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "export "))
		sep := strings.IndexRune(raw, '=')
		if sep <= 0 {
			return nil, fmt.Errorf("load env file %q: invalid line %d", path, lineNo)
		}
		key := strings.TrimSpace(raw[:sep])
		value := strings.TrimSpace(raw[sep+1:])
		switch {
		case strings.HasPrefix(value, "\""):
			unquoted, err := strconv.Unquote(value)
			if err != nil {
				return nil, fmt.Errorf("load env file %q: parse value for %s on line %d: %w", path, key, lineNo, err)
			}
			value = unquoted
		case strings.HasPrefix(value, "'"):
			if len(value) < 2 || value[len(value)-1] != '\'' {
				return nil, fmt.Errorf("load env file %q: unmatched quote on line %d", path, lineNo)
			}
			value = value[1 : len(value)-1]
		default:
			if comment := strings.IndexRune(value, '#'); comment >= 0 {
				value = strings.TrimSpace(value[:comment])
			}
		}
		values[key] = ExpandEnv(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	return values, nil
}
