// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tube

import (
	"github.com/sirupsen/logrus"
)

// Log is the package logger, silent under the default configuration.
// Raise the level to logrus.DebugLevel to watch fibers being created,
// suspended, resumed, and completed; logrus.TraceLevel additionally
// shows every tube invocation in order. Callers may replace or
// reconfigure Log before starting fibers.
var Log = logrus.New()

// debugEnabled gates fiber lifecycle output (created, suspended,
// resumed, completed) and the per-fiber name allocation.
func debugEnabled() bool {
	return Log.IsLevelEnabled(logrus.DebugLevel)
}

// traceEnabled gates the detailed per-step output: which tubes execute
// in what order and how they behaved.
func traceEnabled() bool {
	return Log.IsLevelEnabled(logrus.TraceLevel)
}
