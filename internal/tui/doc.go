// Package tui provides terminal views of a running control loop.
//
//   - [Model]: Bubble Tea program that steps a settled loop every frame and
//     steers the velocity command from the keyboard
//   - [LiveRenderer]: plain ANSI observer for headless rollouts
//   - [Canvas]: Braille-based pixel canvas the robot's side view is drawn on
//
// # Key Bindings
//
//	Space      - Pause/Resume
//	Up/Down    - Forward speed ±0.1
//	Left/Right - Yaw rate ±0.1
//	A/D        - Lateral speed ±0.1
//	0          - Zero the command
//	?          - Show help overlay
package tui
