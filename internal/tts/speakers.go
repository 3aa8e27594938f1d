package tts

// Voice describes one VOICEVOX speaker style.
type Voice struct {
	Name   string
	ID     int
	Lang   string
	Gender string
}

// DefaultSpeaker is 春日部つむぎ[ノーマル].
const DefaultSpeaker = 8

var voices = []Voice{
	{"VOICEVOX:四国めたん[ノーマル]", 2, "ja_JP", "F"},
	{"VOICEVOX:四国めたん[あまあま]", 0, "ja_JP", "F"},
	{"VOICEVOX:ずんだもん[ノーマル]", 3, "ja_JP", "F"},
	{"VOICEVOX:ずんだもん[あまあま]", 1, "ja_JP", "F"},
	{"VOICEVOX:春日部つむぎ[ノーマル]", 8, "ja_JP", "F"},
	{"VOICEVOX:雨晴はう[ノーマル]", 10, "ja_JP", "F"},
	{"VOICEVOX:波音リツ[ノーマル]", 9, "ja_JP", "F"},
	{"VOICEVOX:玄野武宏[ノーマル]", 11, "ja_JP", "M"},
	{"VOICEVOX:白上虎太郎[ふつう]", 12, "ja_JP", "M"},
	{"VOICEVOX:青山龍星[ノーマル]", 13, "ja_JP", "M"},
	{"VOICEVOX:青山龍星[熱血]", 81, "ja_JP", "M"},
	{"VOICEVOX:冥鳴ひまり[ノーマル]", 14, "ja_JP", "F"},
	{"VOICEVOX:九州そら[ノーマル]", 16, "ja_JP", "F"},
	{"VOICEVOX:もち子さん[ノーマル]", 20, "ja_JP", "F"},
	{"VOICEVOX:剣崎雌雄[ノーマル]", 21, "ja_JP", "M"},
	{"VOICEVOX:WhiteCUL[ノーマル]", 23, "ja_JP", "F"},
	{"VOICEVOX:No.7[ノーマル]", 29, "ja_JP", "F"},
	{"VOICEVOX:小夜/SAYO[ノーマル]", 46, "ja_JP", "F"},
	{"VOICEVOX:ナースロボ＿タイプＴ[ノーマル]", 47, "ja_JP", "F"},
	{"VOICEVOX:春歌ナナ[ノーマル]", 54, "ja_JP", "F"},
	{"VOICEVOX:琴詠ニア[ノーマル]", 74, "ja_JP", "F"},
}

// SpeakerByID looks up a speaker style by its VOICEVOX id.
func SpeakerByID(id int) (Voice, bool) {
	for _, v := range voices {
		if v.ID == id {
			return v, true
		}
	}
	return Voice{}, false
}

// SpeakerName returns the display name for a speaker id, or "???" for an
// unknown id.
func SpeakerName(id int) string {
	if v, ok := SpeakerByID(id); ok {
		return v.Name
	}
	return "???"
}

// Speakers returns the known speaker catalog.
func Speakers() []Voice {
	out := make([]Voice, len(voices))
	copy(out, voices)
	return out
}
