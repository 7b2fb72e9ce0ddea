package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// The two feeds shape JSON bodies three ways: a bare array, a bare object,
// or an envelope {"data": T | [T], "warning": "..."}. Shapes drift between
// API versions, so decoding tries each known shape in a fixed, documented
// order instead of probing properties ad hoc. A body matching no shape is a
// shape error; callers degrade to empty results and log rather than fail
// the request.

// ErrShape reports a body that matched none of the known response shapes.
var ErrShape = errors.New("upstream: unrecognized response shape")

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Warning string          `json:"warning"`
}

// DecodeList decodes a collection body. Order tried: bare array, envelope
// holding an array, envelope holding a single object (yielding a one-element
// list). The warning, when the envelope carries one, is returned for the
// caller to log.
func DecodeList[T any](body []byte) ([]T, string, error) {
	if len(body) == 0 {
		return []T{}, "", nil
	}

	var bare []T
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, "", nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Data == nil {
		return []T{}, "", fmt.Errorf("%w: %s", ErrShape, trim(body))
	}

	var list []T
	if err := json.Unmarshal(env.Data, &list); err == nil {
		return list, env.Warning, nil
	}

	var one T
	if err := json.Unmarshal(env.Data, &one); err == nil {
		return []T{one}, env.Warning, nil
	}

	return []T{}, env.Warning, fmt.Errorf("%w: %s", ErrShape, trim(body))
}

// DecodeOne decodes a single-entity body. Order tried: envelope holding an
// object, bare object, envelope holding an array (first element, nil when
// empty). nil with no error means the entity is absent.
func DecodeOne[T any](body []byte) (*T, string, error) {
	if len(body) == 0 || string(body) == "null" {
		return nil, "", nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Data != nil {
		if string(env.Data) == "null" {
			return nil, env.Warning, nil
		}
		var one T
		if err := json.Unmarshal(env.Data, &one); err == nil {
			return &one, env.Warning, nil
		}
		var list []T
		if err := json.Unmarshal(env.Data, &list); err == nil {
			if len(list) == 0 {
				return nil, env.Warning, nil
			}
			return &list[0], env.Warning, nil
		}
		return nil, env.Warning, fmt.Errorf("%w: %s", ErrShape, trim(body))
	}

	var one T
	if err := json.Unmarshal(body, &one); err == nil {
		return &one, "", nil
	}

	return nil, "", fmt.Errorf("%w: %s", ErrShape, trim(body))
}

func trim(body []byte) string {
	const max = 120
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
