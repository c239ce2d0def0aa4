package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/adboost/adboostctl/config"
	"github.com/adboost/adboostctl/ziparchiver"
	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
)

// Set at build time with -ldflags "-X main.version=...".
var version = ""

func newLogger() zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, NoColor: false, TimeFormat: time.RFC3339}
	consoleWriter.TimeFormat = "[" + time.RFC3339 + "]"
	consoleWriter.PartsOrder = []string{
		zerolog.TimestampFieldName,
		zerolog.LevelFieldName,
		zerolog.CallerFieldName,
		zerolog.MessageFieldName,
	}

	logger := zerolog.New(consoleWriter).
		With().Timestamp().Logger()

	level := zerolog.InfoLevel
	envLevel, ok := os.LookupEnv(config.EnvLogLevel)
	if ok {
		parsed, err := zerolog.ParseLevel(envLevel)
		if err != nil {
			logger.Warn().Err(err).Msg("could not parse environment variable " + config.EnvLogLevel)
			return logger
		}
		level = parsed
	}

	return logger.Level(level)
}

func cliVars() kong.Vars {
	return kong.Vars{
		"default_prefix": ziparchiver.DefaultPrefix,
		"preview_addr":   fmt.Sprintf(":%d", config.PreviewPort),
	}
}

func main() {
	args := Command{}
	cli := kong.Parse(&args,
		kong.Name("adboostctl"),
		kong.Description("AdBoost packaging, deployment and backup tool"),
		kong.UsageOnError(),
		cliVars(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignals(cancel)

	logger := newLogger()
	var err error
	switch cli.Command() {
	case "version":
		fmt.Println(versionString())
		return
	case "package":
		err = packageCommand(ctx, args, logger)
	case "deploy":
		err = deployCommand(ctx, args, logger)
	case "backup":
		err = backupCommand(ctx, args, logger)
	case "daemon":
		err = daemonCommand(ctx, args, logger)
	case "clean":
		err = cleanCommand(ctx, args, logger)
	case "history":
		err = historyCommand(ctx, args, os.Stdout)
	case "init":
		err = initCommand(ctx, args, logger)
	case "preview":
		err = previewCommand(ctx, args, logger)
	default:
		panic(cli.Command())
	}
	if err != nil {
		logger.Error().Err(err).Msg(cli.Command() + " error")
		cli.Exit(1)
	}
}

func versionString() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}

func setupSignals(onSignal func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		onSignal()
	}()
}
