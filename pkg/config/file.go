package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

// FileName is the project file looked up next to the sources.
const FileName = "glisp.yaml"

// File mirrors glisp.yaml.
type File struct {
	// Target is a target name as accepted by -t.
	Target string `yaml:"target,omitempty"`
	// Backend is "asm" or "qbe".
	Backend string `yaml:"backend,omitempty"`
	// CC is the C compiler driver used to assemble and link.
	CC string `yaml:"cc,omitempty"`
	// LinkerArgs are appended to the cc command line.
	LinkerArgs []string `yaml:"linker_args,omitempty"`
	// Jobs bounds how many inputs are compiled at once.
	Jobs int `yaml:"jobs,omitempty"`
	// CacheDir enables the assembly cache when set.
	CacheDir string `yaml:"cache_dir,omitempty"`
	// Flags are -W/-F switches, e.g. ["-Wall", "-Fno-muldiv"].
	Flags []string `yaml:"flags,omitempty"`
}

// LoadFile reads and parses a glisp.yaml file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseFile(data, path)
}

// ParseFile parses glisp.yaml content. The path is only used in messages.
func ParseFile(data []byte, path string) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if f.Jobs < 0 {
		return nil, fmt.Errorf("%s: jobs must not be negative", path)
	}
	return &f, nil
}

// FindFile searches for glisp.yaml starting from dir and walking up to the
// filesystem root. It returns "" when there is none.
func FindFile(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		for _, name := range []string{FileName, "glisp.yml"} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// ApplyFile layers a project file over the current settings. The target is
// returned rather than applied because it depends on the backend, which may
// still be overridden.
func (c *Config) ApplyFile(f *File) (target string, err error) {
	if f.Backend != "" {
		if err := c.SetBackend(f.Backend); err != nil {
			return "", err
		}
	}
	if f.CC != "" {
		c.CC = f.CC
	}
	if f.Jobs > 0 {
		c.Jobs = f.Jobs
	}
	if f.CacheDir != "" {
		c.CacheDir = f.CacheDir
	}
	c.LinkerArgs = append(c.LinkerArgs, f.LinkerArgs...)
	if err := c.ApplyFlags(f.Flags); err != nil {
		return "", fmt.Errorf("%s: %w", FileName, err)
	}
	return f.Target, nil
}

// ApplyEnv layers GLISP_* environment variables over the current settings
// and returns GLISP_TARGET, if any. The environment is re-read on every call.
func (c *Config) ApplyEnv() (target string, err error) {
	// env caches the environment on first use; reload so later changes count.
	env.Load()
	if b := env.Str("GLISP_BACKEND"); b != "" {
		if err := c.SetBackend(b); err != nil {
			return "", fmt.Errorf("GLISP_BACKEND: %w", err)
		}
	}
	c.CC = env.Str("GLISP_CC", c.CC)
	if j := env.Int("GLISP_JOBS", c.Jobs); j > 0 {
		c.Jobs = j
	}
	c.CacheDir = env.Str("GLISP_CACHE_DIR", c.CacheDir)
	if env.Bool("GLISP_VERBOSE") {
		c.Verbose = true
	}
	return env.Str("GLISP_TARGET"), nil
}
