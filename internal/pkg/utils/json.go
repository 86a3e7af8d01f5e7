package utils

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// RawJson embeds payload in another message. Event payloads only hold plain
// fields, so a marshal failure is a bug and panics.
func RawJson(payload any) json.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(errors.Wrapf(err, "marshal %T", payload))
	}
	return data
}

func DecodeJson[T any](data []byte) (T, error) {
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return value, errors.Wrapf(err, "decode %T", value)
	}
	return value, nil
}
