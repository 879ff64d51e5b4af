package deepsearch

import (
	"strings"

	"github.com/aaronlee0321/gddsearch/internal/alias"
)

// vietnameseRunes are the letters specific to the Vietnamese alphabet:
// the modified base letters and every tone-marked vowel. ASCII-only
// text never contains them.
const vietnameseRunes = "ăâđêôơư" +
	"àảãáạằẳẵắặầẩẫấậ" +
	"èẻẽéẹềểễếệ" +
	"ìỉĩíị" +
	"òỏõóọồổỗốộờởỡớợ" +
	"ùủũúụừửữứự" +
	"ỳỷỹýỵ"

// DetectLanguage classifies a term over the closed set {vi, en} by
// scanning for Vietnamese-specific letters. Terms without any, such as
// toneless Vietnamese typed in ASCII, classify as English; the
// expansion prompt covers both directions regardless.
func DetectLanguage(term string) string {
	for _, r := range strings.ToLower(term) {
		if strings.ContainsRune(vietnameseRunes, r) {
			return alias.LangVietnamese
		}
	}
	return alias.LangEnglish
}
