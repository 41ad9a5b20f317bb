package value

import (
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

func sjsonSet(raw []byte, path string, v any) ([]byte, error) {
	if raw == nil {
		raw = []byte("{}")
	}
	return sjson.SetBytes(raw, path, v)
}

func prettyPrint(b []byte) []byte {
	return pretty.Pretty(b)
}
