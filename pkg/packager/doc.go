// Package packager drives one hardware-module packaging run.
//
// A run validates the request, reads the descriptor, then walks a fixed
// sequence of stages: clear the workspace, bundle the block script, copy the
// icon, normalize and persist the descriptor, bundle the controller in
// place, delegate to the hardware compressor, write metadata.json, and
// compress the workspace into <BuildPath>/<moduleName>.zip.
//
// The first failing stage ends the run. Its error is logged and returned
// unchanged; nothing is retried or rolled back, and the workspace is left
// as it was for inspection.
//
// Runs must not run concurrently against the same workspace. The packager
// holds no lock; callers serialize runs or give each run its own workspace.
package packager
