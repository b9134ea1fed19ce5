package verbose

import (
	"fmt"
	"sync/atomic"

	"github.com/dougsko/ftxcat/pkg/logging"
)

var enabled atomic.Bool

// SetEnabled sets the global verbose logging flag
func SetEnabled(enable bool) {
	enabled.Store(enable)
}

// IsEnabled returns whether verbose logging is enabled
func IsEnabled() bool {
	return enabled.Load()
}

// Printf prints a verbose log message if verbose logging is enabled
func Printf(format string, args ...interface{}) {
	if enabled.Load() {
		logging.Info("verbose", fmt.Sprintf(format, args...))
	}
}

// Frame traces one wire frame. dir is "TX" or "RX".
func Frame(dir string, frame []byte) {
	if enabled.Load() {
		logging.Info("wire", fmt.Sprintf("%s %q", dir, frame))
	}
}
