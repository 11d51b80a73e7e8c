package model

import (
	"encoding/json"

	"github.com/kaptinlin/jsonrepair"
)

// DecodeArgs turns a provider argument payload (a JSON object string) into a
// map. Models occasionally emit slightly malformed JSON; a repair pass is
// attempted before giving up. An empty or undecodable payload yields an empty
// map so tool validation produces the actionable error, not the decoder.
func DecodeArgs(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}

	args := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return map[string]any{}
	}
	args = map[string]any{}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return map[string]any{}
	}
	return args
}
