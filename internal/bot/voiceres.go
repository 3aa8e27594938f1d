package bot

import "fmt"

// Command tags a VoiceRes with how the client should apply it.
type Command int

const (
	// CmdAll replaces the whole result view (summary, translation).
	CmdAll Command = iota + 1
	// CmdAppend appends one conversational reply, usually with audio.
	CmdAppend
	// CmdLLMOn and CmdLLMOff bracket a completion call so the client
	// can show a busy indicator.
	CmdLLMOn
	CmdLLMOff
)

// String returns the wire name of the command.
func (c Command) String() string {
	switch c {
	case CmdAll:
		return "all"
	case CmdAppend:
		return "append"
	case CmdLLMOn:
		return "llm_on"
	case CmdLLMOff:
		return "llm_off"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// VoiceRes is one bot output: a command, optional display text, and
// optional synthesized audio (a complete 16 kHz mono 16-bit WAV).
type VoiceRes struct {
	Cmd   Command
	Text  string
	Voice []byte
}
