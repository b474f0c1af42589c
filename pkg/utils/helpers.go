package utils

import "strings"

// DisplayName turns a snake_case task id into words
func DisplayName(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}
