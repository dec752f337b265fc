package render

import "golang.org/x/sys/unix"

// wakeupDrainCap mirrors spec §4.F's 256-byte dirtyfd drain cap, reused
// here for the signalfd side of the same socketpair-as-wakeup-channel
// convention.
const wakeupDrainCap = 256

func pokeWakeup(fd int) {
	unix.Write(fd, []byte{'1'})
}

func drainWakeup(fd int) {
	buf := make([]byte, wakeupDrainCap)
	unix.Read(fd, buf)
}
