package config

import (
	"fmt"
	"os"
	"strings"

	"modernc.org/libqbe"
)

type Feature int

const (
	FeatTagPredicates Feature = iota
	FeatMulDiv
	FeatBrackets
	FeatComments
	FeatCount
)

type Warning int

const (
	WarnShadow Warning = iota
	WarnUnused
	WarnStackArgs
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

const (
	BackendAsm = "asm"
	BackendQBE = "qbe"
)

type Config struct {
	Features       map[Feature]Info
	Warnings       map[Warning]Info
	FeatureMap     map[string]Feature
	WarningMap     map[string]Warning
	Backend        string
	Target         string
	TargetArch     string
	WordSize       int
	StackAlignment int
	SymbolPrefix   string
	LabelPrefix    string
	CC             string
	LinkerArgs     []string
	Jobs           int
	CacheDir       string
	Verbose        bool
}

func NewConfig() *Config {
	cfg := &Config{
		Features:       make(map[Feature]Info),
		Warnings:       make(map[Warning]Info),
		FeatureMap:     make(map[string]Feature),
		WarningMap:     make(map[string]Warning),
		Backend:        BackendAsm,
		Target:         "arm64",
		TargetArch:     "arm64",
		WordSize:       8,
		StackAlignment: 16,
		LabelPrefix:    "_",
		CC:             "cc",
		Jobs:           4,
	}

	features := map[Feature]Info{
		FeatTagPredicates: {"tag-predicates", true, "Allow the 'bool?', 'empty?', 'pair?' and 'vector?' predicates."},
		FeatMulDiv:        {"muldiv", true, "Allow the '*' and '/' primitives."},
		FeatBrackets:      {"brackets", true, "Accept '[' and ']' as list delimiters."},
		FeatComments:      {"comments", true, "Recognize ';' line comments."},
	}

	warnings := map[Warning]Info{
		WarnShadow:    {"shadow", false, "Warn when a binding hides another binding of the same name."},
		WarnUnused:    {"unused", true, "Warn about let bindings and parameters that are never referenced."},
		WarnStackArgs: {"stack-args", false, "Warn about calls passing more than eight arguments."},
		WarnExtra:     {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

// SetTarget configures the compiler for a target. An empty target selects
// the host target when it is an arm64 flavour and plain arm64 otherwise.
func (c *Config) SetTarget(goos, goarch, target string) error {
	if target == "" {
		target = libqbe.DefaultTarget(goos, goarch)
		if c.Backend == BackendAsm && !strings.HasPrefix(target, "arm64") {
			target = "arm64"
			if goos == "darwin" {
				target = "arm64_apple"
			}
		}
		c.infof("no target specified, defaulting to '%s'", target)
	} else {
		c.infof("using specified target '%s'", target)
	}

	switch target {
	case "arm64":
		c.SymbolPrefix = ""
	case "arm64_apple", "amd64_apple":
		c.SymbolPrefix = "_"
	case "amd64_sysv", "rv64":
		if c.Backend == BackendAsm {
			return fmt.Errorf("target '%s' needs the qbe backend; the asm backend only emits arm64", target)
		}
		c.SymbolPrefix = ""
	default:
		return fmt.Errorf("unsupported target '%s'. Supported: arm64, arm64_apple (and amd64_sysv, amd64_apple, rv64 with the qbe backend)", target)
	}

	c.Target = target
	c.TargetArch = strings.SplitN(target, "_", 2)[0]
	c.WordSize, c.StackAlignment = 8, 16
	return nil
}

// SetBackend selects the code generator.
func (c *Config) SetBackend(name string) error {
	switch name {
	case BackendAsm, BackendQBE:
		c.Backend = name
		return nil
	}
	return fmt.Errorf("unsupported backend '%s'. Supported: 'asm', 'qbe'", name)
}

func (c *Config) infof(format string, args ...interface{}) {
	if c.Verbose {
		fmt.Fprintf(os.Stderr, "glisp: info: "+format+"\n", args...)
	}
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

func (c *Config) applyFlag(flag string) error {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
	default:
		return fmt.Errorf("unrecognized flag '%s'", flag)
	}
	if isNo {
		name = strings.TrimPrefix(name, "no-")
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return nil
	}

	if isWarning {
		w, ok := c.WarningMap[name]
		if !ok {
			return fmt.Errorf("unknown warning '%s'", name)
		}
		c.SetWarning(w, enable)
		return nil
	}
	f, ok := c.FeatureMap[name]
	if !ok {
		return fmt.Errorf("unknown feature '%s'", name)
	}
	c.SetFeature(f, enable)
	return nil
}

// ApplyFlags applies -W/-F style switches in order. -Wall and -Wno-all go
// first so that individual switches can refine them.
func (c *Config) ApplyFlags(flags []string) error {
	isAll := func(f string) bool {
		f = strings.TrimPrefix(f, "-")
		return f == "Wall" || f == "Wno-all"
	}
	for _, f := range flags {
		if isAll(f) {
			if err := c.applyFlag(f); err != nil {
				return err
			}
		}
	}
	for _, f := range flags {
		if !isAll(f) {
			if err := c.applyFlag(f); err != nil {
				return err
			}
		}
	}
	return nil
}
