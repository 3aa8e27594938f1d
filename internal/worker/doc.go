// Package worker runs speech recognition in a separate OS process so
// that inference latency never blocks session I/O. The host side (Worker)
// spawns the child, streams compressed audio to it, and reads results;
// the child side (Loop) decodes the audio, batches it into a rolling
// buffer, and drives recognition cycles with incremental text fixation.
package worker
