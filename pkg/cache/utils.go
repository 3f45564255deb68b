package cache

import (
	"fmt"
	"strings"
)

// GenerateKey joins a namespace and an identifier into a cache key.
func GenerateKey(prefix, id string) string {
	return prefix + ":" + id
}

// GenerateKeyWithParams appends each parameter to the namespace as its own
// segment.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range params {
		fmt.Fprintf(&b, ":%v", p)
	}
	return b.String()
}

// BuildPattern widens a namespace into a glob matching all of its keys.
func BuildPattern(prefix string) string {
	return prefix + "*"
}
