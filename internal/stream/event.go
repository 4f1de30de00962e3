// Package stream delivers progress tokens followed by exactly one terminal
// event. Every event is one independently parseable JSON object.
package stream

import "encoding/json"

type kind int

const (
	kindToken kind = iota
	kindDone
	kindError
)

// Event is one stream message. Its JSON form is {"token":...},
// {"done":true,"result":...} or {"error":...}.
type Event struct {
	kind   kind
	Token  string
	Result any
	Err    string
}

func Token(s string) Event { return Event{kind: kindToken, Token: s} }

func Done(result any) Event { return Event{kind: kindDone, Result: result} }

func Failure(msg string) Event { return Event{kind: kindError, Err: msg} }

// Terminal reports whether e ends a stream.
func (e Event) Terminal() bool { return e.kind != kindToken }

// Kind names the event for logs and metrics.
func (e Event) Kind() string {
	switch e.kind {
	case kindDone:
		return "done"
	case kindError:
		return "error"
	}
	return "token"
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.kind {
	case kindDone:
		return json.Marshal(struct {
			Done   bool `json:"done"`
			Result any  `json:"result"`
		}{true, e.Result})
	case kindError:
		return json.Marshal(struct {
			Error string `json:"error"`
		}{e.Err})
	}
	return json.Marshal(struct {
		Token string `json:"token"`
	}{e.Token})
}

// UnmarshalJSON decodes any of the three event shapes. Result is left as
// raw JSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Token  *string         `json:"token"`
		Done   bool            `json:"done"`
		Result json.RawMessage `json:"result"`
		Error  *string         `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Error != nil:
		*e = Failure(*raw.Error)
	case raw.Done:
		*e = Done(raw.Result)
	case raw.Token != nil:
		*e = Token(*raw.Token)
	default:
		*e = Token("")
	}
	return nil
}
