package index

import (
	"strconv"
	"strings"
	"time"
)

func itoa(n int) string { return strconv.Itoa(n) }

// splitWords breaks an external query string into the independent
// search terms search_classes_fields_methods AND-conjoins, mirroring
// how an editor's "Go to Symbol" box passes space-separated words.
func splitWords(query string) []string {
	return strings.Fields(query)
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
