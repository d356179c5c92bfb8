package cors

import "bytes"

// StripJSONP unwraps a callback-padded body, `cb({...})` -> `{...}`.
// Bodies without padding come back unchanged.
func StripJSONP(body []byte) []byte {
	open := bytes.IndexByte(body, '(')
	end := bytes.LastIndexByte(body, ')')
	if open < 0 || end < open {
		return body
	}
	inner := bytes.TrimSpace(body[open+1 : end])
	if len(inner) == 0 || (inner[0] != '{' && inner[0] != '[') {
		return body
	}
	return inner
}
