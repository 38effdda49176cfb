// Package subprocess owns the lifecycle of one child process.
//
// A Session spawns the child, pumps raw stdout chunks to a callback, turns
// stderr into diagnostic Notifications, queues writes to stdin, and kills the
// child on Terminate. It knows nothing about message framing; decoding is
// left to the caller.
package subprocess
