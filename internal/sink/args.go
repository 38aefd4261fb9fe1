package sink

import (
	"strings"
	"unicode"
)

// ParseArgs splits a device argument string such as
// "hackrf=0,buffers=32 bias_tx=1" into key/value pairs. Pairs are separated
// by commas or whitespace outside quotes; a bare key maps to "".
func ParseArgs(args string) map[string]string {
	params := make(map[string]string)
	for _, tok := range splitArgs(args) {
		key, val, _ := strings.Cut(tok, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		params[key] = strings.Trim(strings.TrimSpace(val), `"'`)
	}
	return params
}

func splitArgs(s string) []string {
	var (
		toks  []string
		cur   strings.Builder
		quote rune
	)
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			cur.WriteRune(r)
		case r == ',' || unicode.IsSpace(r):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}
