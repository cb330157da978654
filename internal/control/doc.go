// Package control provides the inputs that drive the control loop from
// outside: the velocity command and stand-in action generators.
//
//   - [Source]: holds the current velocity command, safe to Set from another
//     goroutine while the loop reads it
//   - [Zero]: all-zero actions, holds the standing pose
//   - [Trot]: open-loop diagonal trot for demos and smoke tests
//
// Real policies run elsewhere and talk to the loop through Step; the
// generators here only exist so the CLI has something to run.
package control
