// Package bot implements the mode-driven assistant that turns live
// transcription text into rolling summaries, translations, or spoken
// conversation replies.
package bot
