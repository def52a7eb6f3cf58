package registry

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-reporter/types"
)

var (
	// ErrDuplicateKey is returned when two declared tests share a key
	ErrDuplicateKey = errors.New("duplicate test key")
)

// Registry provides the reporting declarations of known tests
type Registry struct {
	log    log.Logger
	groups []*group
	byPkg  map[string]*group
	mu     sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log             log.Logger
	DeclarationFile string
}

// DeclarationFile is the YAML document listing declared tests
type DeclarationFile struct {
	Groups []GroupConfig `yaml:"groups"`
}

// GroupConfig declares a package and the tests it contains
type GroupConfig struct {
	Package  string       `yaml:"package"`
	Class    string       `yaml:"class,omitempty"`
	Category string       `yaml:"category,omitempty"`
	Tags     []string     `yaml:"tags,omitempty"`
	Tickets  []string     `yaml:"tickets,omitempty"`
	Tests    []TestConfig `yaml:"tests,omitempty"`
}

// TestConfig declares a single test function
type TestConfig struct {
	Method     string   `yaml:"method"`
	Key        string   `yaml:"key"`
	Name       string   `yaml:"name,omitempty"`
	Category   string   `yaml:"category,omitempty"`
	Tags       []string `yaml:"tags,omitempty"`
	Tickets    []string `yaml:"tickets,omitempty"`
	Flags      []string `yaml:"flags,omitempty"`
	NoRollback bool     `yaml:"no_rollback,omitempty"`
	Disabled   bool     `yaml:"disabled,omitempty"`
}

type group struct {
	pkg   string
	class string
	decl  *types.GroupDeclaration
	tests map[string]*test
	order []string
}

type test struct {
	decl       *types.Declaration
	noRollback bool
	disabled   bool
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.DeclarationFile == "" {
		return nil, fmt.Errorf("declaration file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{log: cfg.Log}
	if err := r.loadDeclarations(cfg.DeclarationFile); err != nil {
		return nil, fmt.Errorf("failed to load declarations: %w", err)
	}

	cfg.Log.Debug("Registry loaded", "groups", len(r.groups))
	return r, nil
}

// FromDeclarations builds a registry from an already parsed declaration file
func FromDeclarations(file *DeclarationFile, logger log.Logger) (*Registry, error) {
	if logger == nil {
		logger = log.New()
		logger.Error("No logger provided, using default")
	}
	r := &Registry{log: logger}
	if err := r.index(file); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) loadDeclarations(cfgPath string) error {
	file, err := loadConfig(r.log, cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return r.index(file)
}

func (r *Registry) index(file *DeclarationFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	groups := make([]*group, 0, len(file.Groups))
	byPkg := make(map[string]*group, len(file.Groups))
	keys := make(map[string]string)

	for _, gc := range file.Groups {
		if gc.Package == "" {
			return fmt.Errorf("group without package")
		}
		if _, ok := byPkg[gc.Package]; ok {
			return fmt.Errorf("package %s declared more than once", gc.Package)
		}

		g := &group{
			pkg:   gc.Package,
			class: gc.Class,
			tests: make(map[string]*test, len(gc.Tests)),
		}
		if g.class == "" {
			g.class = path.Base(gc.Package)
		}
		if gc.Category != "" || len(gc.Tags) > 0 || len(gc.Tickets) > 0 {
			g.decl = &types.GroupDeclaration{
				Category: gc.Category,
				Tags:     gc.Tags,
				Tickets:  gc.Tickets,
			}
		}

		for _, tc := range gc.Tests {
			if tc.Method == "" {
				return fmt.Errorf("test without method in package %s", gc.Package)
			}
			if _, ok := g.tests[tc.Method]; ok {
				return fmt.Errorf("test %s declared more than once in package %s", tc.Method, gc.Package)
			}
			if tc.Key != "" {
				if prev, ok := keys[tc.Key]; ok {
					return fmt.Errorf("%w: %s used by %s and %s.%s", ErrDuplicateKey, tc.Key, prev, gc.Package, tc.Method)
				}
				keys[tc.Key] = gc.Package + "." + tc.Method
			}

			flags := make([]types.TestFlag, 0, len(tc.Flags))
			for _, name := range tc.Flags {
				f, err := types.ParseTestFlag(name)
				if err != nil {
					return fmt.Errorf("test %s in package %s: %w", tc.Method, gc.Package, err)
				}
				flags = append(flags, f)
			}

			g.tests[tc.Method] = &test{
				decl: &types.Declaration{
					Key:      tc.Key,
					Name:     tc.Name,
					Category: tc.Category,
					Tags:     tc.Tags,
					Tickets:  tc.Tickets,
					Flags:    flags,
				},
				noRollback: tc.NoRollback,
				disabled:   tc.Disabled || types.HasFlag(flags, types.FlagInactive),
			}
			g.order = append(g.order, tc.Method)
		}

		groups = append(groups, g)
		byPkg[gc.Package] = g
	}

	r.groups = groups
	r.byPkg = byPkg
	return nil
}

// Packages returns the declared packages in declaration order
func (r *Registry) Packages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pkgs := make([]string, 0, len(r.groups))
	for _, g := range r.groups {
		pkgs = append(pkgs, g.pkg)
	}
	return pkgs
}

// Candidate builds a fresh candidate for a test function of pkg
func (r *Registry) Candidate(pkg, method string) *types.Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	class := path.Base(pkg)
	g, ok := r.byPkg[pkg]
	if ok {
		class = g.class
	}
	c := types.NewCandidate(pkg, class, method)
	if !ok {
		return c
	}
	c.GroupDeclaration = g.decl
	if t, ok := g.tests[method]; ok {
		c.Declaration = t.decl
		c.NoRollback = t.noRollback
		c.Runnable = !t.disabled
	}
	return c
}

// Candidates lists a fresh candidate for every declared test, grouped by
// package in declaration order.
func (r *Registry) Candidates() []*types.Candidate {
	r.mu.RLock()
	groups := r.groups
	r.mu.RUnlock()

	var out []*types.Candidate
	for _, g := range groups {
		for _, method := range g.order {
			out = append(out, r.Candidate(g.pkg, method))
		}
	}
	return out
}

// loadConfig loads a declaration file
func loadConfig(logger log.Logger, path string) (*DeclarationFile, error) {
	logger.Debug("Reading declaration file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg DeclarationFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &cfg, nil
}
