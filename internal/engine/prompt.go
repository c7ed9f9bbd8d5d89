package engine

import (
	"fmt"
	"strings"

	"github.com/Gskdl78/Labor-saver/internal/rag"
)

// BuildPrompt assembles the generation prompt: role instructions, the user
// question, and the retrieved regulation passages annotated with their
// similarity scores. The wording warns the model about near-identical
// disability-grade rows (「終身無工作能力」vs「終身僅能從事輕便工作」) since
// confusing them produces the wrong benefit grade.
func BuildPrompt(question string, passages []rag.ScoredDocument) string {
	var ctx strings.Builder
	for _, p := range passages {
		fmt.Fprintf(&ctx, "\n相關資訊（相似度: %.3f）：\n%s\n", p.Score, p.Content)
	}

	return fmt.Sprintf(`你是勞資屬道山諮詢助手，專門回答勞工保險相關問題。請根據以下相關資料回答問題。

問題：%s

相關資料：
%s

重要提示：
1. 請**仔細閱讀**用戶問題中的每一個關鍵詞，特別注意「終身無工作能力」vs「終身僅能從事輕便工作」等細微差別
2. 請從相關資料中找出**完全匹配**用戶描述狀況的條目
3. 不同的失能狀態對應不同的失能等級，請確保選擇正確的等級
4. 如果資料中有失能等級資訊，請明確指出等級數字

請根據以上資料用繁體中文回答，提供準確、專業的資訊。回答請控制在200字以內：`, question, ctx.String())
}
