// Package llm provides the text completion client used by the bot's
// summarize, translate, and conversation actions.
package llm
