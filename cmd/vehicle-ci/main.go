// vehicle-ci builds, validates, runs, and integration-tests a
// single-source-file vehicle application.
//
// Subcommands:
//
//	build     resolve input, rebuild if changed, verify the artifact
//	run       build then execute under a wall-clock timeout
//	validate  static checks against the resolved source only
//	test      run one named integration scenario in Docker
//	clean     remove prior build output
//	serve     expose the pipeline over HTTP
//
// Exit codes: 0 success, 1 failure, 2 validation passed with warnings.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/lei/vehicle-ci/internal/config"
	"github.com/lei/vehicle-ci/internal/pipeline"
	"github.com/lei/vehicle-ci/internal/service"
	"github.com/lei/vehicle-ci/pkg/logger"
	"github.com/lei/vehicle-ci/pkg/vehicleci"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Ignore error if the file doesn't exist - env vars might be set externally
	_ = godotenv.Load()

	var (
		configFile     string
		skipDeps       bool
		skipModelGen   bool
		forceRebuild   bool
		strict         bool
		vssFile        string
		vssURL         string
		timeoutSeconds int
		verbose        bool
		quiet          bool
	)

	flagSet := pflag.NewFlagSet("vehicle-ci", pflag.ContinueOnError)
	flagSet.StringVar(&configFile, "config", "", "path to YAML configuration file")
	flagSet.BoolVar(&skipDeps, "skip-deps", false, "skip dependency installation")
	flagSet.BoolVar(&skipModelGen, "skip-model-gen", false, "skip vehicle model generation")
	flagSet.BoolVar(&forceRebuild, "force-rebuild", false, "rebuild even when input is unchanged")
	flagSet.BoolVar(&strict, "strict", false, "fail the quality gate on any metric miss")
	flagSet.StringVar(&vssFile, "vss-file", "", "local vehicle signal specification file")
	flagSet.StringVar(&vssURL, "vss-url", "", "remote vehicle signal specification URL")
	flagSet.IntVar(&timeoutSeconds, "timeout", 0, "run timeout in seconds (overrides config)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	flagSet.BoolVarP(&quiet, "quiet", "q", false, "errors only")
	flagSet.Usage = func() { usage(flagSet) }

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	args := flagSet.Args()
	if len(args) == 0 || args[0] == "help" {
		usage(flagSet)
		if len(args) == 0 {
			return 1
		}
		return 0
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	cfg.Build.SkipDeps = cfg.Build.SkipDeps || skipDeps
	cfg.Build.SkipModelGen = cfg.Build.SkipModelGen || skipModelGen
	cfg.Build.ForceRebuild = cfg.Build.ForceRebuild || forceRebuild
	cfg.Gate.Strict = cfg.Gate.Strict || strict
	if vssFile != "" {
		cfg.Build.VSSFile = vssFile
	}
	if vssURL != "" {
		cfg.Build.VSSURL = vssURL
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if quiet {
		cfg.Logging.Level = "quiet"
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc := service.NewService(cfg, log)

	switch args[0] {
	case "build":
		_, err := svc.Build(ctx)
		return finish(err)

	case "run":
		timeout := cfg.Run.Timeout
		if timeoutSeconds > 0 {
			timeout = time.Duration(timeoutSeconds) * time.Second
		}
		if len(args) > 1 {
			seconds, parseErr := strconv.Atoi(args[1])
			if parseErr != nil || seconds <= 0 {
				fmt.Fprintf(os.Stderr, "error: invalid timeout %q, want positive seconds\n", args[1])
				return 1
			}
			timeout = time.Duration(seconds) * time.Second
		}
		_, err := svc.Run(ctx, timeout)
		return finish(err)

	case "validate":
		_, exitCode, err := svc.Validate(ctx)
		if err != nil {
			return finish(err)
		}
		return exitCode

	case "test":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "error: test requires a scenario name")
			listScenarios(svc)
			return 1
		}
		_, err := svc.Test(ctx, args[1])
		if errors.Is(err, service.ErrScenarioNotFound) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			listScenarios(svc)
			return 1
		}
		return finish(err)

	case "clean":
		return finish(svc.Clean(ctx))

	case "serve":
		p, err := vehicleci.NewFromConfig(cfg)
		if err != nil {
			return finish(err)
		}
		return finish(p.Start(ctx))

	default:
		fmt.Fprintf(os.Stderr, "error: unknown subcommand %q\n", args[0])
		usage(flagSet)
		return 1
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// finish prints the classified error with its remediation tips and
// maps it to the process exit code.
func finish(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)

	kind := pipeline.KindOf(err)
	var perr *pipeline.Error
	if errors.As(err, &perr) && perr.LogTail != "" {
		fmt.Fprintf(os.Stderr, "\nlog tail:\n%s\n", perr.LogTail)
	}
	for _, tip := range pipeline.Tips(kind) {
		fmt.Fprintf(os.Stderr, "hint: %s\n", tip)
	}
	return 1
}

func listScenarios(svc *service.Service) {
	scenarios, err := svc.Scenarios()
	if err != nil {
		return
	}
	fmt.Fprintln(os.Stderr, "available scenarios:")
	for _, s := range scenarios {
		fmt.Fprintf(os.Stderr, "  %s\n", s.Name)
	}
}

func usage(flagSet *pflag.FlagSet) {
	fmt.Fprint(os.Stderr, `vehicle-ci - vehicle application build and test pipeline

Usage:
  vehicle-ci [flags] <subcommand> [args]

Subcommands:
  build              resolve input, rebuild if changed, verify the artifact
  run [seconds]      build then execute under a wall-clock timeout
  validate           static checks against the resolved source only
  test <scenario>    run one named integration scenario in Docker
  clean              remove prior build output
  serve              expose the pipeline over HTTP
  help               show this message

Flags:
`)
	fmt.Fprintln(os.Stderr, flagSet.FlagUsages())
}
