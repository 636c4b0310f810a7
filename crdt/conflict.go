// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crdt

import (
	"fmt"
)

// ConflictStrategyKind names one of the three pluggable strategies.
type ConflictStrategyKind string

const (
	LastWriterWins      ConflictStrategyKind = "last_writer_wins"
	OperationalTransform ConflictStrategyKind = "operational_transform"
	ManualResolution     ConflictStrategyKind = "manual_resolution"
)

// ConflictReason is always ContentMismatch in this protocol -- the only
// kind of conflict the spec defines is two differing values at the same
// field path.
type ConflictReason string

const ContentMismatch ConflictReason = "content_mismatch"

// ConflictInfo records a concurrent edit the configured strategy declined
// to auto-resolve.
type ConflictInfo struct {
	FieldPath        string
	LocalOperation   *MemoryOperation
	RemoteOperation  *MemoryOperation
	Reason           ConflictReason
}

// resolveConcurrent applies strategy to op given the set of locally
// applied operations that conflict with it on the same field path (same
// path, different value). It returns (applied, conflict-if-any).
func resolveConcurrent(strategy ConflictStrategyKind, op *MemoryOperation, conflicting []*MemoryOperation) (bool, *ConflictInfo) {
	if len(conflicting) == 0 {
		return true, nil
	}
	switch strategy {
	case LastWriterWins:
		for _, local := range conflicting {
			if !op.Timestamp.After(local.Timestamp) {
				return false, nil
			}
		}
		return true, nil
	case OperationalTransform:
		return resolveOT(op, conflicting)
	case ManualResolution:
		return false, &ConflictInfo{
			FieldPath:       op.FieldPath,
			LocalOperation:  conflicting[len(conflicting)-1],
			RemoteOperation: op,
			Reason:          ContentMismatch,
		}
	default:
		return false, &ConflictInfo{
			FieldPath:       op.FieldPath,
			LocalOperation:  conflicting[len(conflicting)-1],
			RemoteOperation: op,
			Reason:          ContentMismatch,
		}
	}
}

// resolveOT implements the transformable cases named in spec.md §4.5: two
// concurrent string Sets combine as "local | remote"; Append is already
// commutative so it applies directly; Delete and Merge have no trivial
// transform and defer to manual resolution.
func resolveOT(op *MemoryOperation, conflicting []*MemoryOperation) (bool, *ConflictInfo) {
	local := conflicting[len(conflicting)-1]

	switch op.OperationType {
	case Append:
		return true, nil
	case Set:
		if local.OperationType != Set {
			break
		}
		localStr, localOK := stringValue(local.Value)
		remoteStr, remoteOK := stringValue(op.Value)
		if localOK && remoteOK {
			combined := fmt.Sprintf("%s | %s", localStr, remoteStr)
			op.Value = mustMarshalString(combined)
			return true, nil
		}
	}
	return false, &ConflictInfo{
		FieldPath:       op.FieldPath,
		LocalOperation:  local,
		RemoteOperation: op,
		Reason:          ContentMismatch,
	}
}
