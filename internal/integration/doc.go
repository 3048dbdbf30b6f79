// Package integration connects live subsystem configuration to the
// parameter registry and routes registry changes through the update
// coordinator.
//
// A Bridge exposes one subsystem's parameters by path. Integrate pulls the
// bridge's values into the registry; once the Manager is started every
// registry change becomes coordinator work:
//
//	registry change ──▶ parameter-change task ──▶ Bridge.SetValue
//	                 │                          └─▶ Bridge.OnParameterChanged
//	                 ├─▶ dependent parameter-change tasks
//	                 └─▶ refresh tasks for the changed and dependent systems
//	                                             └─▶ Refresher.Refresh
//
// Values flow the other way on Sync, periodically when AutoSync is set.
// Writes pulled from a bridge are tagged SourceBridge and are not echoed
// back to it.
//
// With WatchPresets and a file-backed preset store, edits to the active
// preset's file are reloaded into the registry.
package integration
