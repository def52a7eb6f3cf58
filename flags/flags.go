package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-reporter/config"
)

const EnvVarPrefix = "OP_REPORTER"

var (
	TestDir = &cli.StringFlag{
		Name:    "testdir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TESTDIR"),
		Usage:   "Path to the Go module containing the declared tests",
	}
	Declarations = &cli.StringFlag{
		Name:    "declarations",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DECLARATIONS"),
		Usage:   "Path to the test declarations file (eg. 'declarations.yaml')",
	}
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONFIG"),
		Usage:   "Path to a TOML reporter configuration file. Flags override its values.",
	}
	GoBinary = &cli.StringFlag{
		Name:    "go-binary",
		Value:   "go",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "GO_BINARY"),
		Usage:   "Path to the Go binary to use for running tests",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT"),
		Usage:   "Timeout for the tests of one package (e.g. '10m'). 0 uses the default.",
	}
	Serve = &cli.BoolFlag{
		Name:    "serve",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SERVE"),
		Usage:   "Serve the trigger endpoint instead of running the tests once",
	}
	TriggerAddr = &cli.StringFlag{
		Name:    "trigger-addr",
		Value:   "0.0.0.0:8090",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TRIGGER_ADDR"),
		Usage:   "Listen address of the trigger endpoint in serve mode",
	}
	TriggerRateLimit = &cli.Float64Flag{
		Name:    "trigger-rate-limit",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TRIGGER_RATE_LIMIT"),
		Usage:   "Maximum run requests per second accepted by the trigger endpoint. 0 disables the limit.",
	}
	Filters = &cli.StringFlag{
		Name:    "filters",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FILTERS"),
		Usage:   "Comma separated filter tokens for run-once mode (e.g. 'key:PAY-1,tag:billing')",
	}
	Seed = &cli.Int64Flag{
		Name:    "seed",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SEED"),
		Usage:   "Generator seed for run-once mode. Defaults to the current time.",
	}
	Category = &cli.StringFlag{
		Name:    "category",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CATEGORY"),
		Usage:   "Listener default category for run-once mode",
	}

	Disabled = &cli.BoolFlag{
		Name:    "reporter.disabled",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER_DISABLED"),
		Usage:   "Disable result aggregation and dispatch",
	}
	Tags = &cli.StringSliceFlag{
		Name:    "reporter.tags",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER_TAGS"),
		Usage:   "Tags added to every reported test",
	}
	Tickets = &cli.StringSliceFlag{
		Name:    "reporter.tickets",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER_TICKETS"),
		Usage:   "Tickets added to every reported test",
	}
	ConfiguredCategory = &cli.StringFlag{
		Name:    "reporter.category",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER_CATEGORY"),
		Usage:   "Category used when a test declares none",
	}
	GeneratorSeed = &cli.Int64Flag{
		Name:    "reporter.generator-seed",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER_GENERATOR_SEED"),
		Usage:   "Generator seed overriding any seed given to a run",
	}
	ProjectAPIID = &cli.StringFlag{
		Name:    "reporter.project-api-id",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER_PROJECT_API_ID"),
		Usage:   "Project identifier sent with every payload",
	}
	ProjectVersion = &cli.StringFlag{
		Name:    "reporter.project-version",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER_PROJECT_VERSION"),
		Usage:   "Project version sent with every payload",
	}
	Group = &cli.StringFlag{
		Name:    "reporter.group",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER_GROUP"),
		Usage:   "Group sent with every payload",
	}
	UID = &cli.StringFlag{
		Name:    "reporter.uid",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER_UID"),
		Usage:   "Run UID overriding the derived one",
	}
	Save = &cli.BoolFlag{
		Name:    "reporter.save",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER_SAVE"),
		Usage:   "Save payloads to the workspace directory",
	}
	WorkspaceDir = &cli.StringFlag{
		Name:    "reporter.workspace-dir",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER_WORKSPACE_DIR"),
		Usage:   "Directory payloads are saved to",
	}
	CompressPayload = &cli.BoolFlag{
		Name:    "reporter.compress",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER_COMPRESS"),
		Usage:   "Gzip saved payloads",
	}
	Publish = &cli.BoolFlag{
		Name:    "reporter.publish",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER_PUBLISH"),
		Usage:   "Publish payloads to the collector",
	}
	PublishTransport = &cli.StringFlag{
		Name:    "reporter.publish-transport",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER_PUBLISH_TRANSPORT"),
		Usage:   fmt.Sprintf("Transport used to publish payloads (%s or %s)", config.TransportHTTP, config.TransportRedis),
		Action: func(ctx *cli.Context, v string) error {
			return validateTransport(v)
		},
	}
	PublishTimeout = &cli.DurationFlag{
		Name:    "reporter.publish-timeout",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER_PUBLISH_TIMEOUT"),
		Usage:   "Timeout of one publish request",
	}
	ServerURL = &cli.StringFlag{
		Name:    "reporter.server-url",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER_SERVER_URL"),
		Usage:   "Base URL of the collector",
	}
	ServerAPIKey = &cli.StringFlag{
		Name:    "reporter.server-api-key",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER_SERVER_API_KEY"),
		Usage:   "API key sent to the collector as a bearer token",
	}
	RedisURL = &cli.StringFlag{
		Name:    "reporter.redis-url",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER_REDIS_URL"),
		Usage:   "Redis URL (redis://host:port/db) for the redis transport",
	}
	RedisKey = &cli.StringFlag{
		Name:    "reporter.redis-key",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER_REDIS_KEY"),
		Usage:   "Redis list payloads are pushed to",
	}
)

var requiredFlags = []cli.Flag{
	TestDir,
	Declarations,
}

var optionalFlags = []cli.Flag{
	ConfigFile,
	GoBinary,
	Timeout,
	Serve,
	TriggerAddr,
	TriggerRateLimit,
	Filters,
	Seed,
	Category,
}

// ReporterFlags override the values of the configuration file
var ReporterFlags = []cli.Flag{
	Disabled,
	Tags,
	Tickets,
	ConfiguredCategory,
	GeneratorSeed,
	ProjectAPIID,
	ProjectVersion,
	Group,
	UID,
	Save,
	WorkspaceDir,
	CompressPayload,
	Publish,
	PublishTransport,
	PublishTimeout,
	ServerURL,
	ServerAPIKey,
	RedisURL,
	RedisKey,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, ReporterFlags...)
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}

func validateTransport(v string) error {
	if !config.PublishTransport(v).IsValid() {
		return fmt.Errorf("publish transport must be one of %s, %s; got %q", config.TransportHTTP, config.TransportRedis, v)
	}
	return nil
}
