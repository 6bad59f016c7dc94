package utils

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

var ErrMissingPayload = errors.New("event payload is missing")

// DecodePayload converts the first socket.io event argument, already decoded
// into maps and slices, into out.
func DecodePayload(args []any, out any) error {
	if len(args) == 0 || args[0] == nil {
		return ErrMissingPayload
	}
	raw, err := json.Marshal(args[0])
	if err != nil {
		return errors.Wrap(err, "encode payload")
	}
	return errors.Wrap(json.Unmarshal(raw, out), "decode payload")
}

// UserIDArg accepts both `"id"` and `{"userId": "id"}`.
func UserIDArg(args []any) (string, error) {
	if len(args) == 0 || args[0] == nil {
		return "", ErrMissingPayload
	}
	switch v := args[0].(type) {
	case string:
		return v, nil
	case float64:
		return fmt.Sprintf("%.0f", v), nil
	}

	var payload struct {
		UserID string `json:"userId"`
	}
	if err := DecodePayload(args, &payload); err != nil {
		return "", err
	}
	return payload.UserID, nil
}
