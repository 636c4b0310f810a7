// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crdt

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OperationType string

const (
	Set    OperationType = "set"
	Delete OperationType = "delete"
	Append OperationType = "append"
	Merge  OperationType = "merge"
)

// MemoryOperation is one CRDT edit applied along a dot-path into a
// memory's JSON payload.
type MemoryOperation struct {
	OperationID   uuid.UUID       `json:"operation_id"`
	OperationType OperationType   `json:"operation_type"`
	FieldPath     string          `json:"field_path"`
	Value         json.RawMessage `json:"value,omitempty"`
	VectorClock   *VectorClock    `json:"vector_clock"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewOperation builds a MemoryOperation with a fresh operation id. value
// may be nil for Delete.
func NewOperation(opType OperationType, fieldPath string, value interface{}, clock *VectorClock) (*MemoryOperation, error) {
	var raw json.RawMessage
	if value != nil {
		b, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &MemoryOperation{
		OperationID:   uuid.New(),
		OperationType: opType,
		FieldPath:     fieldPath,
		Value:         raw,
		VectorClock:   clock,
		Timestamp:     time.Now().UTC(),
	}, nil
}
