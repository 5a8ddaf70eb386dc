package content

import (
	"strings"

	"github.com/starfrich/cryptletter/internal/common"
)

// MakePreview derives the public preview string stored in the ledger:
// title and text blocks joined by spaces, with a placeholder substituted
// for every embedded asset, truncated to the preview budget. The budget
// counts runes, not bytes, so multi-byte titles never get split
// mid-character.
func MakePreview(title string, doc *Document) string {
	parts := []string{title}
	if doc != nil {
		for _, b := range doc.Blocks {
			switch b.Type {
			case BlockText:
				if b.Text != "" {
					parts = append(parts, b.Text)
				}
			case BlockAsset:
				parts = append(parts, common.AssetPlaceholder)
			}
		}
	}

	preview := strings.Join(parts, " ")
	return TruncateRunes(preview, common.PreviewRuneBudget)
}

// TruncateRunes shortens s to at most budget runes, appending an ellipsis
// when anything was cut.
func TruncateRunes(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	return string(runes[:budget-1]) + "…"
}
