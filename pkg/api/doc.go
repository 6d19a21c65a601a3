// Package api defines the public types of the intervu runtime: the session,
// turn and attempt records, the Engine interface, the GraphProvider
// capability interface, the engine error taxonomy, and the Observer used
// for logging and metrics.
//
// Most users import the root intervu package, which re-exports everything
// here; this package exists so that internal packages and external
// integrations can share types without import cycles.
package api
