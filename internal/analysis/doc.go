// Package analysis summarizes recorded rollouts.
//
// Everything here works on plain observation sequences so it runs the same
// on a live loop and on runs reloaded from storage:
//
//   - [PowerSpectrum] and [DominantFrequency]: gait frequency of a joint
//     trace via gonum's real FFT
//   - [Tilt]: base tilt from projected gravity
//   - [JointPhase]: joint position/velocity phase portrait
//   - [StrideSection]: samples taken once per gait cycle
//   - [Summarize]: the per-run numbers the CLI prints
//
// A trotting gait shows up as a single spectral peak on every thigh:
//
//	f := analysis.DominantFrequency(analysis.JointSeries(obs, dynamo.ObsJointPos+4), dt)
package analysis
