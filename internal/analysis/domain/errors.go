package analysis

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrModelCall wraps transport failures of the model provider.
var ErrModelCall = errors.New("model call failed")

const maxRawReply = 512

// ModelOutputError reports a model reply that does not satisfy the flow's
// output contract. No partial result accompanies it.
type ModelOutputError struct {
	Flow string
	Err  error
	Raw  string
}

// NewModelOutputError keeps at most a short prefix of the raw reply.
func NewModelOutputError(flow string, raw []byte, err error) *ModelOutputError {
	text := string(raw)
	if len(text) > maxRawReply {
		cut := maxRawReply
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return &ModelOutputError{Flow: flow, Err: err, Raw: text}
}

func (e *ModelOutputError) Error() string {
	return fmt.Sprintf("model output for %s rejected: %v", e.Flow, e.Err)
}

func (e *ModelOutputError) Unwrap() error { return e.Err }
