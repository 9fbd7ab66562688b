package main

import (
	"fmt"

	"github.com/goliatone/go-logger/glog"
)

// printfLogger bridges glog's structured logger to the printf style
// auth.Logger used by the library.
type printfLogger struct {
	l glog.Logger
}

func (p printfLogger) Debug(format string, args ...any) { p.l.Debug(fmt.Sprintf(format, args...)) }
func (p printfLogger) Info(format string, args ...any)  { p.l.Info(fmt.Sprintf(format, args...)) }
func (p printfLogger) Warn(format string, args ...any)  { p.l.Warn(fmt.Sprintf(format, args...)) }
func (p printfLogger) Error(format string, args ...any) { p.l.Error(fmt.Sprintf(format, args...)) }
