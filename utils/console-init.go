package utils

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"syscall"

	"github.com/logrusorgru/aurora"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// ConsoleInit sets up the global logger, human-readable on a terminal and
// JSON otherwise, and returns a logger tagged with the app name.
func ConsoleInit(name string) zerolog.Logger {
	logsInit(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))

	if name != "" {
		return zlog.With().Str("app", name).Logger()
	}
	return zlog.Logger
}

func logsInit(out io.Writer, console bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if console {
		zlog.Logger = zlog.
			Output(zerolog.ConsoleWriter{Out: out, TimeFormat: "02/01 15:04:05"}).
			Hook(LineInfoHook{})
	} else {
		zlog.Logger = zerolog.New(out).
			With().Timestamp().Logger().
			Hook(LineInfoHook{})
	}
}

// RaiseOpenFilesLimit lifts RLIMIT_NOFILE, the loaders keep many images open at once.
func RaiseOpenFilesLimit(limit uint64) {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		fmt.Printf("%s Failed to get rlimit: %s\n",
			aurora.Red("ERR"), err.Error())
		return
	}

	var changed = false
	if rLimit.Cur < limit {
		rLimit.Cur = limit
		changed = true
	}
	if rLimit.Max < limit {
		rLimit.Max = limit
		changed = true
	}
	if !changed {
		return
	}

	err = syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		fmt.Printf("%s Failed to set rlimit: %s\n",
			aurora.Red("ERR"), err.Error())
	} else {
		fmt.Printf("%s changed to current=%v, max=%v\n",
			aurora.Green("rlimit"), rLimit.Cur, rLimit.Max)
	}
}

type LineInfoHook struct{}

func (h LineInfoHook) Run(e *zerolog.Event, l zerolog.Level, msg string) {
	if l >= zerolog.InfoLevel {
		_, file, line, ok := runtime.Caller(3)
		if ok {
			if idx := strings.Index(file, "geo-locator/"); idx >= 0 {
				file = file[idx+len("geo-locator/"):]
			}
			e.Str("line", fmt.Sprintf("%s:%d", file, line))
		}
	}
}
