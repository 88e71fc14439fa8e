// Package util provides shared utility functions used across the codebase.
package util

import "strings"

// SplitList splits a comma-separated flag value into its items, trimming
// whitespace and dropping empty items. Desktop database table names are
// case-insensitive, so later items that differ only in case from an
// earlier one are dropped. Returns nil for empty strings.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var result []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		key := strings.ToLower(part)
		if part == "" || seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, part)
	}
	return result
}
