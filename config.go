package reporter

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-reporter/config"
	"github.com/ethereum-optimism/infra/op-reporter/flags"
	"github.com/ethereum-optimism/infra/op-reporter/host"
	"github.com/ethereum-optimism/infra/op-reporter/service"
)

// Config holds the application configuration
type Config struct {
	TestDir      string        // Go module holding the declared tests
	Declarations string        // Path to the declarations file
	GoBinary     string        // Go binary used to run tests
	Timeout      time.Duration // Timeout for the tests of one package
	Serve        bool          // Serve the trigger endpoint instead of running once
	TriggerAddr  string        // Listen address of the trigger endpoint
	RateLimit    float64       // Run requests per second accepted by the trigger endpoint
	Filters      string        // Filter tokens of the run-once run
	Seed         *int64        // Seed of the run-once run
	Category     string        // Listener default category of the run-once run
	Reporter     *config.Config
	Executor     host.Executor    // Overrides `go test` execution, nil in production
	Service      *service.Service // Healthz and metrics servers, optional
	Log          log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	testDir := ctx.String(flags.TestDir.Name)
	if testDir == "" {
		return nil, errors.New("test directory is required")
	}
	declarations := ctx.String(flags.Declarations.Name)
	if declarations == "" {
		return nil, errors.New("declarations file is required")
	}

	absTestDir, err := filepath.Abs(testDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for test directory '%s': %w", testDir, err)
	}
	absDeclarations, err := filepath.Abs(declarations)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for declarations '%s': %w", declarations, err)
	}

	reporterCfg, err := config.Load(ctx.String(flags.ConfigFile.Name))
	if err != nil {
		return nil, err
	}
	applyReporterFlags(ctx, reporterCfg)
	if err := reporterCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reporter configuration: %w", err)
	}
	if reporterCfg.Save {
		if reporterCfg.WorkspaceDir, err = filepath.Abs(reporterCfg.WorkspaceDir); err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for workspace directory: %w", err)
		}
	}

	var seed *int64
	if ctx.IsSet(flags.Seed.Name) {
		v := ctx.Int64(flags.Seed.Name)
		seed = &v
	}

	return &Config{
		TestDir:      absTestDir,
		Declarations: absDeclarations,
		GoBinary:     ctx.String(flags.GoBinary.Name),
		Timeout:      ctx.Duration(flags.Timeout.Name),
		Serve:        ctx.Bool(flags.Serve.Name),
		TriggerAddr:  ctx.String(flags.TriggerAddr.Name),
		RateLimit:    ctx.Float64(flags.TriggerRateLimit.Name),
		Filters:      ctx.String(flags.Filters.Name),
		Seed:         seed,
		Category:     ctx.String(flags.Category.Name),
		Reporter:     reporterCfg,
		Log:          log,
	}, nil
}

// applyReporterFlags overrides configuration file values with the flags set
// on the command line or in the environment
func applyReporterFlags(ctx *cli.Context, cfg *config.Config) {
	if ctx.IsSet(flags.Disabled.Name) {
		cfg.Disabled = ctx.Bool(flags.Disabled.Name)
	}
	if ctx.IsSet(flags.Tags.Name) {
		cfg.Tags = ctx.StringSlice(flags.Tags.Name)
	}
	if ctx.IsSet(flags.Tickets.Name) {
		cfg.Tickets = ctx.StringSlice(flags.Tickets.Name)
	}
	if ctx.IsSet(flags.ConfiguredCategory.Name) {
		cfg.Category = ctx.String(flags.ConfiguredCategory.Name)
	}
	if ctx.IsSet(flags.GeneratorSeed.Name) {
		v := ctx.Int64(flags.GeneratorSeed.Name)
		cfg.GeneratorSeed = &v
	}
	if ctx.IsSet(flags.ProjectAPIID.Name) {
		cfg.ProjectAPIID = ctx.String(flags.ProjectAPIID.Name)
	}
	if ctx.IsSet(flags.ProjectVersion.Name) {
		cfg.ProjectVersion = ctx.String(flags.ProjectVersion.Name)
	}
	if ctx.IsSet(flags.Group.Name) {
		cfg.Group = ctx.String(flags.Group.Name)
	}
	if ctx.IsSet(flags.UID.Name) {
		cfg.UID = ctx.String(flags.UID.Name)
	}
	if ctx.IsSet(flags.Save.Name) {
		cfg.Save = ctx.Bool(flags.Save.Name)
	}
	if ctx.IsSet(flags.WorkspaceDir.Name) {
		cfg.WorkspaceDir = ctx.String(flags.WorkspaceDir.Name)
	}
	if ctx.IsSet(flags.CompressPayload.Name) {
		cfg.CompressPayload = ctx.Bool(flags.CompressPayload.Name)
	}
	if ctx.IsSet(flags.Publish.Name) {
		cfg.Publish = ctx.Bool(flags.Publish.Name)
	}
	if ctx.IsSet(flags.PublishTransport.Name) {
		cfg.PublishTransport = config.PublishTransport(ctx.String(flags.PublishTransport.Name))
	}
	if ctx.IsSet(flags.PublishTimeout.Name) {
		cfg.PublishTimeout = config.Duration(ctx.Duration(flags.PublishTimeout.Name))
	}
	if ctx.IsSet(flags.ServerURL.Name) {
		cfg.ServerURL = ctx.String(flags.ServerURL.Name)
	}
	if ctx.IsSet(flags.ServerAPIKey.Name) {
		cfg.ServerAPIKey = ctx.String(flags.ServerAPIKey.Name)
	}
	if ctx.IsSet(flags.RedisURL.Name) {
		cfg.RedisURL = ctx.String(flags.RedisURL.Name)
	}
	if ctx.IsSet(flags.RedisKey.Name) {
		cfg.RedisKey = ctx.String(flags.RedisKey.Name)
	}
}
