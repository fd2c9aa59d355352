package datafetch

import (
	"fmt"
	"reflect"

	json "github.com/goccy/go-json"
)

// DecodeItem converts a payload into T: directly when the payload already is a T,
// otherwise through a JSON round trip.
func DecodeItem[T any](payload any) (T, error) {
	if v, ok := payload.(T); ok {
		return v, nil
	}

	var out T
	raw, err := json.Marshal(payload)
	if err != nil {
		return out, fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode payload into %T: %w", out, err)
	}

	return out, nil
}

// DecodeItems converts a payload holding either one item or a list of items into []T.
func DecodeItems[T any](payload any) ([]T, error) {
	if list, ok := asList(payload); ok {
		return decodeAll[T](list)
	}

	item, err := DecodeItem[T](payload)
	if err != nil {
		return nil, err
	}

	return []T{item}, nil
}

// ExtractList is the default list extraction: the payload itself when it is a list,
// or the sole value of a single-key mapping when that value is a list.
func ExtractList[T any](payload any) ([]T, error) {
	list, ok := asList(payload)
	if !ok {
		if m, isMap := asMap(payload); isMap && len(m) == 1 {
			for _, v := range m {
				list, ok = asList(v)
			}
		}
	}

	if !ok {
		return nil, configError("extract list", ErrUnrecognizedPayload)
	}

	return decodeAll[T](list)
}

// DefaultObjectKey returns the id field of item.
func DefaultObjectKey[T any](item T) (string, error) {
	m, ok := asMap(item)
	if !ok {
		decoded, err := DecodeItem[map[string]any](item)
		if err != nil {
			return "", configError("extract object key", ErrMissingID)
		}
		m = decoded
	}

	id, ok := m["id"]
	if !ok || id == nil || id == "" {
		return "", configError("extract object key", ErrMissingID)
	}

	return fmt.Sprint(id), nil
}

func decodeAll[T any](list []any) ([]T, error) {
	out := make([]T, 0, len(list))
	for i, v := range list {
		item, err := DecodeItem[T](v)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, item)
	}

	return out, nil
}

func asList(payload any) ([]any, bool) {
	if list, ok := payload.([]any); ok {
		return list, true
	}

	rv := reflect.ValueOf(payload)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}

	list := make([]any, rv.Len())
	for i := range list {
		list[i] = rv.Index(i).Interface()
	}

	return list, true
}

func asMap(payload any) (map[string]any, bool) {
	if m, ok := payload.(map[string]any); ok {
		return m, true
	}

	rv := reflect.ValueOf(payload)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}

	m := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		m[iter.Key().String()] = iter.Value().Interface()
	}

	return m, true
}
