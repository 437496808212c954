package speaker

import "encoding/json"

// ParseStatus interprets the body of a status reply.
//
// Devices wrap their status document as {"response": {...}, "result": true}.
// When body is JSON with a non-null "response" member, the member is
// returned. Any other valid JSON is returned decoded. Anything else is
// returned as the raw string. ParseStatus never fails.
func ParseStatus(body string) any {
	var envelope struct {
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err == nil &&
		len(envelope.Response) > 0 && string(envelope.Response) != "null" {
		var inner any
		if err := json.Unmarshal(envelope.Response, &inner); err == nil {
			return inner
		}
	}

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err == nil {
		return doc
	}
	return body
}
