package model

import "strings"

// NormalizeTags はタグを集合として正規化する。
// 前後の空白を除去し、空文字列と重複を取り除く。出現順は保持する。
// nilを渡すと空のスライスを返す。
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
