package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedCommand is returned when a command cannot be decoded or is
// missing required fields.
var ErrMalformedCommand = errors.New("malformed command")

var validate = validator.New(validator.WithRequiredStructEnabled())

type wireCommand struct {
	Kind Kind            `json:"kind" validate:"required"`
	Body json.RawMessage `json:"body" validate:"required"`
}

// Encode serializes a command as a tagged JSON object.
func Encode(cmd Command) ([]byte, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", cmd.Kind(), err)
	}
	return json.Marshal(wireCommand{Kind: cmd.Kind(), Body: body})
}

// Decode parses and validates a tagged command.
func Decode(data []byte) (Command, error) {
	var w wireCommand
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	if err := validate.Struct(w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}

	switch w.Kind {
	case KindStart:
		return decodeBody[Start](w.Body)
	case KindPlaceBid:
		return decodeBody[PlaceBid](w.Body)
	case KindTick:
		return decodeBody[Tick](w.Body)
	case KindAdvance:
		return decodeBody[Advance](w.Body)
	case KindSkip:
		return decodeBody[Skip](w.Body)
	case KindPause:
		return decodeBody[Pause](w.Body)
	case KindResume:
		return decodeBody[Resume](w.Body)
	case KindStop:
		return decodeBody[Stop](w.Body)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedCommand, w.Kind)
	}
}

// Validate checks a command built in-process.
func Validate(cmd Command) error {
	if err := validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedCommand, cmd.Kind(), err)
	}
	return nil
}

func decodeBody[T Command](body json.RawMessage) (Command, error) {
	var cmd T
	if err := json.Unmarshal(body, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}
