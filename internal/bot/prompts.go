package bot

// Prompt templates for the three mode actions. Kept in Japanese; the
// summary layout is part of the product's output format.

const summarizeSystem = "あなたは音声テキストの要約の専門家です。重要なポイントを簡潔にまとめます。"

const summarizePrompt = `
以下の音声認識テキストを簡潔に要約してください。
重要なポイントを箇条書きで記載し、できるだけ簡潔にまとめてください。

# 参加者
- 会話から人物を推定して列挙

# 結論
- 議題1：大まかな内容
- 議題2：大まかな内容

# 内容
- 議題1
    - 重要なポイントや決議事項や発言者を箇条書きで記載
- 議題2
    - 重要なポイントや決議事項や発言者を箇条書きで記載

音声認識テキスト：
`

const translateSystem = "あなたは優秀な翻訳者です。自然で分かりやすい日本語訳を提供します。"

const translatePrompt = `
以下のテキストを自然な日本語に翻訳してください。
文脈を考慮し、分かりやすい日本語になるよう心がけてください。

原文：
`

const respondSystem = "あなたは会話アシスタントです。音声認識された発言に対して、短く自然な日本語で応答してください。"
