/*
Copyright 2013 The Camlistore Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package klog sets up the structured logger shared by every avrix
// kernel package. It exists so that the scheduler, locks, door and
// filesystem code can all log kernel events (task switches, lock
// contention, EEPROM rollovers) as structured fields instead of
// formatted prose.
package klog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once sync.Once
	base *zap.Logger
)

// L returns the process-wide avrix logger, building it lazily on first
// use. Tests that want quiet output call SetForTest.
func L() *zap.Logger {
	once.Do(func() {
		l, err := zap.NewDevelopment()
		if err != nil {
			// zap's own construction failing means stderr is
			// unusable; fall back to a no-op rather than panic
			// from inside a logging helper.
			l = zap.NewNop()
		}
		base = l
	})
	return base
}

// SetForTest installs l as the process-wide logger and returns a
// restore func, for tests that want to assert on log output or
// silence it with zap.NewNop().
func SetForTest(l *zap.Logger) func() {
	once.Do(func() {}) // ensure once is consumed so L() won't overwrite l
	prev := base
	base = l
	return func() { base = prev }
}

// Named returns a child logger scoped to the given kernel component,
// e.g. klog.Named("sched").
func Named(component string) *zap.SugaredLogger {
	return L().Named(component).Sugar()
}
