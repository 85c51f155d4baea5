package telemetry

import (
	"os"

	charmlog "github.com/charmbracelet/log"
)

// Logger is the default Sink, backed by charmbracelet/log. The
// teacher's go.mod already carries this dependency; no .go file in
// the reference repo calls it (its own logging stayed on the
// untranslated C textcolor/dw_printf layer). This is where it
// actually gets used.
type Logger struct {
	log *charmlog.Logger
}

// NewLogger builds a Logger writing structured lines to os.Stderr.
func NewLogger() *Logger {
	l := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		Prefix:          "alsaengine",
		ReportTimestamp: true,
	})
	return &Logger{log: l}
}

func (l *Logger) Xrun(direction string, magnitudeFrames int) {
	l.log.Warn("xrun", "direction", direction, "frames", magnitudeFrames)
}

func (l *Logger) CaptureDropped(frames int) {
	l.log.Warn("capture buffer dropped", "frames", frames)
}

func (l *Logger) StateChange(from, to string) {
	l.log.Info("state transition", "from", from, "to", to)
}

func (l *Logger) NeedBuffer(requestedFrames int) {
	l.log.Debug("need buffer", "frames", requestedFrames)
}

var _ Sink = (*Logger)(nil)
