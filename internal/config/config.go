// Package config loads notacms configuration.
//
// Settings come from three layers, later layers winning:
//
//  1. A CUE config file (or directory of CUE files), checked against the
//     embedded schema
//  2. NOTACMS_* environment variables
//  3. Command-line flags, applied by the CLI on the decoded Config
//
// A config file is optional when the environment supplies the source.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"

	"github.com/roach88/notacms/internal/graph"
	"github.com/roach88/notacms/internal/hook"
	"github.com/roach88/notacms/internal/registry"
	"github.com/roach88/notacms/internal/syncer"
)

//go:embed schema.cue
var schemaCUE string

// Config is the decoded configuration.
type Config struct {
	Source   Variant  `json:"source"`
	Storage  Variant  `json:"storage"`
	Sync     Sync     `json:"sync"`
	Listener Listener `json:"listener"`
	Hooks    Hooks    `json:"hooks"`
	LogLevel string   `json:"logLevel"`
}

// Variant selects a source or storage implementation by tag.
type Variant struct {
	Type    string           `json:"type"`
	Options registry.Options `json:"options"`
}

// Sync holds orchestrator settings.
type Sync struct {
	Name          string   `json:"name,omitempty"`
	NoMemcache    bool     `json:"noMemcache"`
	SkipRehydrate bool     `json:"skipRehydrate"`
	Dangling      string   `json:"dangling"`
	OnStart       bool     `json:"onStart"`
	Whitelist     []string `json:"whitelist"`
	Blacklist     []string `json:"blacklist"`
}

// Listener configures the HTTP update trigger.
type Listener struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// Address returns host:port.
func (l Listener) Address() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// Hooks lists the expression rules of each pipeline hook.
type Hooks struct {
	BeforeRelationships []hook.Rule `json:"beforeRelationships"`
	BeforeStorage       []hook.Rule `json:"beforeStorage"`
	BeforeContent       []hook.Rule `json:"beforeContent"`
}

// DanglingPolicy parses Sync.Dangling.
func (c *Config) DanglingPolicy() graph.DanglingPolicy {
	p, _ := graph.ParseDanglingPolicy(c.Sync.Dangling)
	return p
}

// SourceName returns the label used for the source in logs, metrics and
// trigger URLs: Sync.Name when set, else the source type.
func (c *Config) SourceName() string {
	if c.Sync.Name != "" {
		return c.Sync.Name
	}
	return c.Source.Type
}

// Load reads the config at path, applies environment overrides from
// environ (the process environment when nil), and validates the result.
// An empty path means no config file.
func Load(path string, environ map[string]string) (*Config, error) {
	ctx := cuecontext.New()
	file, err := loadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return build(ctx, file, environ)
}

// Parse is Load for CUE source text.
func Parse(src []byte, environ map[string]string) (*Config, error) {
	ctx := cuecontext.New()
	file := ctx.CompileBytes(src, cue.Filename("config.cue"))
	if err := file.Err(); err != nil {
		return nil, configError("config file", formatCUEError(err))
	}
	return build(ctx, file, environ)
}

func build(ctx *cue.Context, file cue.Value, environ map[string]string) (*Config, error) {
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}

	// Check the file alone first so errors carry file positions.
	if err := schema.Unify(file).Validate(); err != nil {
		return nil, configError("invalid config", formatCUEError(err))
	}

	var doc map[string]any
	if err := file.Decode(&doc); err != nil {
		return nil, configError("config file", formatCUEError(err))
	}
	if doc == nil {
		doc = map[string]any{}
	}

	env, err := ParseEnv(environ)
	if err != nil {
		return nil, configError("environment", err)
	}
	env.apply(doc)

	value := schema.Unify(ctx.Encode(doc))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, configError("invalid config", formatCUEError(err))
	}

	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return nil, configError("decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(ctx *cue.Context, path string) (cue.Value, error) {
	if path == "" {
		return ctx.CompileString("{}"), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, configError("config file", err)
	}

	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return cue.Value{}, configError("config directory", fmt.Errorf("no CUE instances loaded from %s", path))
		}
		inst := instances[0]
		if inst.Err != nil {
			return cue.Value{}, configError("config directory", fmt.Errorf("loading CUE files: %w", inst.Err))
		}
		v := ctx.BuildInstance(inst)
		if err := v.Err(); err != nil {
			return cue.Value{}, configError("config directory", formatCUEError(err))
		}
		return v, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, configError("config file", err)
	}
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return cue.Value{}, configError("config file", formatCUEError(err))
	}
	return v, nil
}

// Validate checks constraints the schema does not express.
func (c *Config) Validate() error {
	for _, w := range c.Sync.Whitelist {
		for _, b := range c.Sync.Blacklist {
			if w == b {
				return syncer.NewConfigError(fmt.Sprintf("collection %q is both whitelisted and blacklisted", w))
			}
		}
	}
	if _, ok := graph.ParseDanglingPolicy(c.Sync.Dangling); !ok {
		return syncer.NewConfigError(fmt.Sprintf("unknown dangling policy %q", c.Sync.Dangling))
	}
	return nil
}

func configError(message string, err error) error {
	return &syncer.Error{Code: syncer.ErrCodeConfig, Message: message, Err: err}
}

// formatCUEError reduces a CUE error list to its first error, prefixed
// with its position when known.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := cueerrors.Positions(first)
	if len(positions) > 0 && positions[0].IsValid() {
		pos := positions[0]
		return fmt.Errorf("%s:%d:%d: %s", pos.Filename(), pos.Line(), pos.Column(), first.Error())
	}
	return first
}
