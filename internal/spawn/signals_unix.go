//go:build unix

package spawn

import "os/signal"

// resetSignalsAround stops forwarding every signal to this process's own
// channels for the duration of a spawn, returning a restore function. See
// the open-question note in Spawn: Go's exec model has no child-side
// pre-exec hook, so this is the closest equivalent to arcterm.c's
// "reset every signal 1..NSIG to default" step.
func resetSignalsAround() func() {
	signal.Reset()
	return func() {}
}
