// Package session orchestrates one transcription worker and one bot per
// client connection, relaying their outputs to the transport, and manages
// the set of active sessions.
package session
