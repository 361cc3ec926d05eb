// Package rendezvous implements the filesystem signal rendezvous: a
// directory under the OS temp root holding a PID file and three
// trigger files (reload, restart, stop). It is process-wide, global,
// mutable state by design: created once on manager start, read by
// send_signal, and never deleted. Leftover files from a prior crash
// are tolerated — Send removes and recreates a trigger file on the
// next signal. Watchers react to a trigger file's creation (or, when
// polling, its appearance), debounced per signal; contents are never
// compared.
package rendezvous
