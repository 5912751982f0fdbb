package domain

import "strings"

// RedactionPolicy lists the dotted key paths removed before persistence.
type RedactionPolicy struct {
	ForbiddenKeys []string
}

// DefaultForbiddenKeys are the stackwalker outputs kept out of the store.
var DefaultForbiddenKeys = []string{
	"json_dump",
	"upload_file_minidump_flash1.json_dump",
	"upload_file_minidump_flash2.json_dump",
	"upload_file_minidump_browser.json_dump",
}

// ParseKeyList splits a comma separated list, dropping blanks.
func ParseKeyList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
