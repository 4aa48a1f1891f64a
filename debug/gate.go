// Package debug implements the C9 Debug Channel: a secondary HTTP
// endpoint speaking namespaced commands over a plain JSON request/response
// shape, distinct from the wire package's line-delimited protocol, for
// programmatic smoke tests and integration harnesses.
package debug

import (
	"os"
	"path/filepath"
)

// MutateEnvVar gates any command that mutates a user session or shared
// swarm state. Set to "1" (or any non-empty value) to opt in.
const MutateEnvVar = "JCODE_DEBUG_ALLOW_MUTATE"

// mutateMarkerFile is the file-based opt-in alternative to the env var,
// checked under the runtime directory so a harness can drop a sentinel
// file instead of threading an environment variable through a spawned
// process tree.
const mutateMarkerFile = "debug-allow-mutate"

// MutationsAllowed reports whether tester:*/swarm:set_context-style
// commands that mutate state are permitted, per the env var or the
// marker file under runtimeDir.
func MutationsAllowed(runtimeDir string, getenv func(string) string) bool {
	if getenv == nil {
		getenv = os.Getenv
	}
	if getenv(MutateEnvVar) != "" {
		return true
	}
	if runtimeDir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(runtimeDir, mutateMarkerFile))
	return err == nil
}
