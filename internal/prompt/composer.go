package prompt

import (
	"altwriter/internal/core"
	"fmt"
	"strings"
)

// StructureHint is the non-binding order in which a sentence may present the product.
const StructureHint = "商品スペック→コア要素→どんな人に→利用シーン→得られるベネフィット"

// Prompt is the system/user message pair sent to the backend.
type Prompt struct {
	System string
	User   string
}

// rules are the fixed policy statements shared by every mode.
var rules = []string{
	"画像の描写は一切しない。ALT（代替テキスト）として自然な日本語の文を作成する。",
	"絵文字・顔文字・機種依存文字・装飾記号・HTMLタグは使わない。",
	"比較広告・競合優位の表現（他社より・圧倒的・No.1 など）は使わない。",
	"「画像」「写真」「映っている」「クリック」などの画像操作や視覚メタ語は使わない。",
	"型番・素材・仕様などの具体情報は自然に文中へ織り込み、単語の羅列にしない。",
	"事実と異なる断定や効能・医療的な主張はしない。",
	"文末を引用符で終わらせない。",
	"語尾に変化をつけ、同じ言い回しの連続を避ける。",
}

// Compose builds the prompts for one entity. It is pure and never touches the network.
func Compose(entityID string, digest *core.Digest, policy core.Policy, mode core.ResponseMode) Prompt {
	return Prompt{
		System: systemPrompt(digest, policy, mode),
		User:   userPrompt(entityID, digest, policy, mode),
	}
}

// ComposeAll returns the prompts for every response mode so the client can
// switch to plain text without recomposing.
func ComposeAll(entityID string, digest *core.Digest, policy core.Policy) map[core.ResponseMode]Prompt {
	return map[core.ResponseMode]Prompt{
		core.ModeJSON: Compose(entityID, digest, policy, core.ModeJSON),
		core.ModeText: Compose(entityID, digest, policy, core.ModeText),
	}
}

func systemPrompt(digest *core.Digest, policy core.Policy, mode core.ResponseMode) string {
	var sb strings.Builder
	sb.WriteString("あなたはECモール（楽天・Yahoo）専門の日本語コピーライターです。\n\n")
	sb.WriteString("【禁止・制約】\n")
	for _, r := range rules {
		sb.WriteString("・" + r + "\n")
	}
	sb.WriteString(fmt.Sprintf("・各ALTは1〜2文、およそ%d〜%d文字を目安にする。\n", policy.GenerationLenMin, policy.GenerationLenMax))
	sb.WriteString(fmt.Sprintf("・各文は必ず終止記号（%s のいずれか）で終える。\n", terminalList(policy)))
	if words := forbiddenList(digest); words != "" {
		sb.WriteString("・次の語は絶対に使わない: " + words + "\n")
	}

	sb.WriteString("\n【書き方のヒント】（強制ではない）\n")
	sb.WriteString("・" + StructureHint + "\n")

	sb.WriteString("\n【出力形式】\n")
	switch mode {
	case core.ModeText:
		if policy.CopyLenMax > 0 {
			sb.WriteString(fmt.Sprintf("1行目に「COPY: 」に続けてキャッチコピー（%d〜%d文字）を書く。\n", policy.CopyLenMin, policy.CopyLenMax))
		}
		sb.WriteString(fmt.Sprintf("続けてALTを%d本、1行に1本ずつ出力する。番号・記号・説明文は付けない。\n", policy.RequiredQuota))
	default:
		sb.WriteString("次のJSONオブジェクトのみを出力する。前後に説明やコードフェンスを付けない。\n")
		if policy.CopyLenMax > 0 {
			sb.WriteString(fmt.Sprintf(`{"copy": "キャッチコピー（%d〜%d文字）", "alts": ["ALTを%d件"]}`+"\n", policy.CopyLenMin, policy.CopyLenMax, policy.RequiredQuota))
		} else {
			sb.WriteString(fmt.Sprintf(`{"alts": ["ALTを%d件"]}`+"\n", policy.RequiredQuota))
		}
	}
	return strings.TrimSpace(sb.String())
}

func userPrompt(entityID string, digest *core.Digest, policy core.Policy, mode core.ResponseMode) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("商品名: %s\n", entityID))
	if digest != nil && digest.Summary != "" {
		sb.WriteString("\n【参考情報（要約）】\n")
		sb.WriteString(digest.Summary + "\n")
	}
	sb.WriteString(fmt.Sprintf("\n構成ヒント（テンプレではなく自然に）: %s\n", StructureHint))
	sb.WriteString(fmt.Sprintf("\n上記の商品について、ALTテキストを%d本作成してください。", policy.RequiredQuota))
	if mode == core.ModeText {
		sb.WriteString("行区切りで出力してください。")
	} else {
		sb.WriteString("指定のJSON形式で出力してください。")
	}
	return sb.String()
}

func terminalList(policy core.Policy) string {
	rs := []rune(policy.SentenceTerminals)
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = string(r)
	}
	return strings.Join(parts, " ")
}

func forbiddenList(digest *core.Digest) string {
	if digest == nil {
		return ""
	}
	return strings.Join(digest.Forbidden.Words(), "、")
}
