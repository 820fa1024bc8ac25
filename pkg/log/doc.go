// Package log wraps the standard library logger with named service loggers.
//
// Every line is prefixed with the service name:
//
//	2025/01/02 10:00:00.000000 INFO [storage>] switched to /data/reports.db
//
// Usage:
//
//	l := log.ForService("index")
//	l.Infof("built %s over %d columns", table, n)
//	l.Debugf("match expression: %s", expr) // printed only with debug enabled
//
// Debug output can be enabled for every service (SetGlobalDebug, the --debug
// flag) or selectively (EnableDebugFor, SCOUT_DEBUG=query,index).
//
// The package name collides with the standard library; alias one of them
// when both are needed.
package log
