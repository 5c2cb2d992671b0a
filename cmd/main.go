package main

import (
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	bramble "github.com/bramble-dev/bramble/internal"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const (
	PermissionsDefault = 0o744
)

func main() {
	_ = godotenv.Load()

	configurationLocation := flag.String("configuration", os.Getenv("CONFIGURATION_LOCATION"),
		"Path of configuration file")

	loggingLevel := flag.String("level", os.Getenv("LOGGING_LEVEL"),
		"Logging level")

	loggingFileLoggingEnabled := flag.Bool("fileLoggingEnabled", os.Getenv("LOGGING_FILE_LOGGING_ENABLED") == "true",
		"When enabled, will save logs to files")

	loggingDirectory := flag.String("directory", os.Getenv("LOGGING_DIRECTORY"),
		"Directory to store logs in")

	loggingFilename := flag.String("filename", os.Getenv("LOGGING_FILENAME"),
		"Filename to store logs as")

	loggingMaxSize := flag.Int("maxSize", 100,
		"Maximum size (in MB) before rotating")

	loggingMaxBackups := flag.Int("maxBackups", 10,
		"Maximum number of rotated logs to keep")

	loggingMaxAge := flag.Int("maxAge", 31,
		"Maximum age (in days) before deleting rotated logs")

	flag.Parse()

	level, err := zerolog.ParseLevel(*loggingLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writer io.Writer = os.Stdout

	if isatty.IsTerminal(os.Stdout.Fd()) {
		writer = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	if *loggingFileLoggingEnabled {
		if err := os.MkdirAll(*loggingDirectory, PermissionsDefault); err != nil {
			println("Failed to create logging directory:", err.Error())
			os.Exit(1)
		}

		writer = zerolog.MultiLevelWriter(writer, &lumberjack.Logger{
			Filename:   filepath.Join(*loggingDirectory, *loggingFilename),
			MaxSize:    *loggingMaxSize,
			MaxBackups: *loggingMaxBackups,
			MaxAge:     *loggingMaxAge,
		})
	}

	b, err := bramble.NewBramble(writer, bramble.Options{
		ConfigurationLocation: *configurationLocation,
		Token:                 os.Getenv("TOKEN"),
		LogLevel:              level,
	})
	if err != nil {
		println("Failed to create client:", err.Error())
		os.Exit(1)
	}

	err = b.Open()
	if err != nil {
		b.Logger.Error().Err(err).Msg("Failed to open client")
		os.Exit(1)
	}

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	err = b.Close()
	if err != nil {
		b.Logger.Error().Err(err).Msg("Failed to close client")
	}
}
