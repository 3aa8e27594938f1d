// Package tts synthesizes conversation replies to speech through a
// VOICEVOX server, discovered among candidate hosts at first use.
package tts
