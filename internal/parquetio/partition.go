package parquetio

import (
	"fmt"
	"strings"
)

// PartitionDir renders Hive-style col=value path segments.
func PartitionDir(cols, vals []string) string {
	segs := make([]string, len(cols))
	for i, c := range cols {
		segs[i] = EscapePathName(c) + "=" + EscapePartitionValue(vals[i])
	}
	return strings.Join(segs, "/")
}

// EscapePartitionValue escapes v for a directory name; empty becomes
// DefaultPartition.
func EscapePartitionValue(v string) string {
	if v == "" {
		return DefaultPartition
	}
	return EscapePathName(v)
}

// EscapePathName percent-encodes the characters Hive refuses in path names.
func EscapePathName(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if needsEscape(c) {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func needsEscape(c byte) bool {
	if c < 0x20 || c == 0x7f {
		return true
	}
	switch c {
	case '"', '#', '%', '\'', '*', '/', ':', '=', '?', '\\', '{', '[', ']', '^':
		return true
	}
	return false
}
