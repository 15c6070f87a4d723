package gateway

import (
	"crypto/sha1"
	"fmt"
	"sort"
	"strings"
)

// cacheKey derives a deterministic cache key from target, method and
// parameters. Parameters are rendered sorted by name so insertion order never
// affects key identity.
func cacheKey(target, method string, params map[string]interface{}) string {
	if len(params) == 0 {
		return fmt.Sprintf("%s:%s", target, method)
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		fmt.Fprintf(&b, "%s=%v", name, params[name])
	}

	digest := sha1.Sum([]byte(b.String()))
	return fmt.Sprintf("%s:%s:%x", target, method, digest)
}
