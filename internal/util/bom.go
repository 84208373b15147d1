package util

import "bytes"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// StripBOM drops a leading UTF-8 byte-order mark.
func StripBOM(b []byte) []byte {
	return bytes.TrimPrefix(b, utf8BOM)
}

// StripBOMString is StripBOM for header cells read by encoding/csv.
func StripBOMString(s string) string {
	return string(StripBOM([]byte(s)))
}
