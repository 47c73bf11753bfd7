package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	SetLoggerConsole(false)
	SetLevel(0)
}

// ANSI SGR codes
const (
	sgrBold    = 1
	sgrRed     = 31
	sgrGreen   = 32
	sgrYellow  = 33
	sgrMagenta = 35
	sgrGray    = 90
)

type levelTag struct {
	text  string
	codes []int
}

var levelTags = map[string]levelTag{
	zerolog.LevelTraceValue: {"TRACE", []int{sgrMagenta}},
	zerolog.LevelDebugValue: {"DEBUG", []int{sgrYellow}},
	zerolog.LevelInfoValue:  {"INFO", []int{sgrGreen}},
	zerolog.LevelWarnValue:  {"WARN", []int{sgrRed}},
	zerolog.LevelErrorValue: {"ERROR", []int{sgrRed, sgrBold}},
	zerolog.LevelFatalValue: {"FATAL", []int{sgrRed, sgrBold}},
	zerolog.LevelPanicValue: {"PANIC", []int{sgrRed, sgrBold}},
}

func paint(s string, noColour bool, codes ...int) string {
	if noColour {
		return s
	}
	for _, c := range codes {
		s = fmt.Sprintf("\x1b[%dm%s\x1b[0m", c, s)
	}
	return s
}

// SetLevel sets the global level from a verbosity count: 0 is info, 1 is
// debug and anything higher is trace.
func SetLevel(verbosity int) {
	level := zerolog.InfoLevel - zerolog.Level(verbosity)
	if level < zerolog.TraceLevel {
		level = zerolog.TraceLevel
	}
	zerolog.SetGlobalLevel(level)
}

// SetLoggerConsole routes the global logger to a console writer on stdout
// with short caller locations.
func SetLoggerConsole(noColour bool) {
	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		return filepath.Base(file) + ":" + strconv.Itoa(line)
	}
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly, NoColor: noColour}
	cw.FormatLevel = func(i any) string { return formatLevel(i, noColour) }
	cw.FormatCaller = func(i any) string {
		s, _ := i.(string)
		return paint(fmt.Sprintf("%-18s", s), noColour, sgrGray)
	}
	log.Logger = log.With().Caller().Logger().Output(cw)
}

func formatLevel(i any, noColour bool) string {
	s, ok := i.(string)
	if !ok {
		return "| ???   |"
	}
	tag, ok := levelTags[s]
	if !ok {
		return paint(fmt.Sprintf("| %-5s |", s), noColour, sgrBold)
	}
	return paint(fmt.Sprintf("| %-5s |", tag.text), noColour, tag.codes...)
}

// RankLogger returns the process logger tagged with a rank.
func RankLogger(rank int) zerolog.Logger {
	return log.Logger.With().Int("rank", rank).Logger()
}

// Fatal logs err at panic level with the operation that failed and panics.
// A panic escaping a rank goroutine takes the whole process down.
func Fatal(logger zerolog.Logger, err error, op string) {
	logger.Panic().Err(err).Str("op", op).Msg("unrecoverable failure")
}

// GetMemUsage formats the runtime memory counters in MiB.
func GetMemUsage() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	mib := func(b uint64) uint64 { return b >> 20 }
	return fmt.Sprintf("Alloc = %v MiB TotalAlloc = %v MiB Sys = %v MiB NumGC = %v",
		mib(m.Alloc), mib(m.TotalAlloc), mib(m.Sys), m.NumGC)
}
