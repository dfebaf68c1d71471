// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package log provides leveled logging for all fuzzer packages.
// Logging is done against a process-wide verbosity level so that
// worker loops can stay chatty at high levels without flooding
// campaign logs.
package log

import (
	"fmt"
	golog "log"
	"os"
	"sync/atomic"
	"time"
)

var (
	verbosity   int32
	prependTime uint32 = 1
)

// EnableLogging sets the process-wide verbosity. Messages logged with
// a level above it are dropped.
func EnableLogging(level int) {
	atomic.StoreInt32(&verbosity, int32(level))
}

// PrependTime controls whether log lines carry a timestamp prefix.
func PrependTime(enable bool) {
	v := uint32(0)
	if enable {
		v = 1
	}
	atomic.StoreUint32(&prependTime, v)
}

func V(level int) bool {
	return int32(level) <= atomic.LoadInt32(&verbosity)
}

func Logf(level int, msg string, args ...interface{}) {
	if !V(level) {
		return
	}
	text := fmt.Sprintf(msg, args...)
	if atomic.LoadUint32(&prependTime) != 0 {
		text = fmt.Sprintf("%v %v", time.Now().Format("15:04:05"), text)
	}
	golog.Print(text)
}

func Errorf(msg string, args ...interface{}) {
	Logf(0, "ERROR: "+msg, args...)
}

// Fatalf reports a structural error and stops the process. Only
// configuration and startup failures go through here; per-execution
// errors are absorbed by the worker loop.
func Fatalf(msg string, args ...interface{}) {
	golog.Printf("FATAL: "+msg, args...)
	os.Exit(1)
}
