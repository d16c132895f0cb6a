package derailed

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Version is the library version reported to the gateway during identify.
const Version = "0.1.0"

// repositoryURL is reported as part of the identify client metadata.
const repositoryURL = "https://github.com/derailed-org/derailed-go"

// libraryName is the browser/device value sent during identify.
const libraryName = "derailed-go"

func debugEnabled() bool {
	return os.Getenv("DEBUG") != ""
}

// defaultLogger builds the logger used when the caller does not inject one.
// It writes human-readable lines to stderr at debug level when the DEBUG
// environment variable is set, and is disabled otherwise.
func defaultLogger() zerolog.Logger {
	if !debugEnabled() {
		return zerolog.Nop()
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}
