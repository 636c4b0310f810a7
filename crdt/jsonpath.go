// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crdt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/musictopeople/ocm-go/ocmerr"
)

// jsonObject is the generic decode target for memory_data: a JSON object
// whose values may themselves be objects, arrays, strings, numbers, bools
// or null.
type jsonObject = map[string]interface{}

func decodeObject(data string) (jsonObject, error) {
	if strings.TrimSpace(data) == "" {
		return jsonObject{}, nil
	}
	var m jsonObject
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, ocmerr.Wrap(ocmerr.CrdtInvalidData, err, "crdt: memory_data is not a JSON object")
	}
	return m, nil
}

func encodeObject(m jsonObject) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", ocmerr.Wrap(ocmerr.CrdtInvalidData, err, "crdt: re-serialize memory_data")
	}
	return string(b), nil
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// navigateSet walks obj along path, creating empty objects for missing
// intermediate keys, and assigns value at the leaf.
func navigateSet(obj jsonObject, path string, value interface{}) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return ocmerr.New(ocmerr.CrdtOperationFailed, "crdt: empty field path")
	}
	cur := obj
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p]
		if !ok || next == nil {
			child := jsonObject{}
			cur[p] = child
			cur = child
			continue
		}
		childMap, ok := next.(jsonObject)
		if !ok {
			// decoded via encoding/json, intermediate maps arrive as
			// map[string]interface{}; normalize that shape too.
			if m, ok2 := next.(map[string]interface{}); ok2 {
				childMap = jsonObject(m)
			} else {
				return ocmerr.Newf(ocmerr.CrdtOperationFailed, "crdt: path segment %q is not an object", p)
			}
		}
		cur = childMap
	}
	cur[parts[len(parts)-1]] = value
	return nil
}

// navigateDelete walks obj along path; if an intermediate is missing it is
// a no-op, otherwise the leaf key is removed.
func navigateDelete(obj jsonObject, path string) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return ocmerr.New(ocmerr.CrdtOperationFailed, "crdt: empty field path")
	}
	cur := obj
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p]
		if !ok {
			return nil
		}
		childMap, ok := asObject(next)
		if !ok {
			return nil
		}
		cur = childMap
	}
	delete(cur, parts[len(parts)-1])
	return nil
}

func asObject(v interface{}) (jsonObject, bool) {
	switch t := v.(type) {
	case jsonObject:
		return t, true
	case map[string]interface{}:
		return jsonObject(t), true
	default:
		return nil, false
	}
}

func asArray(v interface{}) ([]interface{}, bool) {
	a, ok := v.([]interface{})
	return a, ok
}

// navigateAppend walks obj along path, creating an empty object for each
// missing or null intermediate, and pushes value onto an Array target or
// concatenates it as a string onto a String target. A missing or null
// target becomes a one-element array holding value.
func navigateAppend(obj jsonObject, path string, value interface{}) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return ocmerr.New(ocmerr.CrdtOperationFailed, "crdt: empty field path")
	}
	cur := obj
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p]
		if !ok || next == nil {
			child := jsonObject{}
			cur[p] = child
			cur = child
			continue
		}
		childMap, ok := asObject(next)
		if !ok {
			return ocmerr.Newf(ocmerr.CrdtOperationFailed, "crdt: path segment %q is not an object", p)
		}
		cur = childMap
	}

	leaf := parts[len(parts)-1]
	existing, ok := cur[leaf]
	if !ok || existing == nil {
		cur[leaf] = []interface{}{value}
		return nil
	}
	switch t := existing.(type) {
	case []interface{}:
		cur[leaf] = append(t, value)
	case string:
		cur[leaf] = t + fmt.Sprintf("%v", value)
	default:
		return ocmerr.Newf(ocmerr.CrdtOperationFailed, "crdt: append target at %q is neither array nor string", path)
	}
	return nil
}

// navigateMerge walks obj along path; if both sides are objects it shallow
// merges with new keys overwriting, if both are arrays it concatenates,
// otherwise the new value overwrites outright.
func navigateMerge(obj jsonObject, path string, value interface{}) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return ocmerr.New(ocmerr.CrdtOperationFailed, "crdt: empty field path")
	}
	cur := obj
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p]
		if !ok || next == nil {
			child := jsonObject{}
			cur[p] = child
			cur = child
			continue
		}
		childMap, ok := asObject(next)
		if !ok {
			return ocmerr.Newf(ocmerr.CrdtOperationFailed, "crdt: path segment %q is not an object", p)
		}
		cur = childMap
	}

	leaf := parts[len(parts)-1]
	existing := cur[leaf]

	if existingObj, ok := asObject(existing); ok {
		if valueObj, ok := asObject(value); ok {
			for k, v := range valueObj {
				existingObj[k] = v
			}
			cur[leaf] = existingObj
			return nil
		}
	}
	if existingArr, ok := asArray(existing); ok {
		if valueArr, ok := asArray(value); ok {
			cur[leaf] = append(existingArr, valueArr...)
			return nil
		}
	}
	cur[leaf] = value
	return nil
}
