package crdt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/musictopeople/ocm-go/memory"
)

func TestApplyOperationSetAndIdempotence(t *testing.T) {
	require := require.New(t)

	base := memory.New("did:plc:abc", "individual", `{}`)
	cm := NewCrdtMemory(base, LastWriterWins)

	clock := NewVectorClock()
	clock.Increment("peerA")
	op, err := NewOperation(Set, "first_name", "Jamie", clock)
	require.NoError(err)

	require.NoError(cm.ApplyOperation(op, "peerA"))
	require.Contains(cm.Base.MemoryData, "Jamie")
	require.True(cm.Base.VerifyHash())

	// re-delivering the same op is a no-op (idempotence / dedupe).
	before := cm.Base.MemoryData
	require.NoError(cm.ApplyOperation(op, "peerA"))
	require.Equal(before, cm.Base.MemoryData)
	require.Len(cm.Ops, 1)
}

func TestApplyOperationSetNestedPath(t *testing.T) {
	require := require.New(t)

	base := memory.New("did:plc:abc", "individual", `{}`)
	cm := NewCrdtMemory(base, LastWriterWins)

	clock := NewVectorClock()
	op, err := NewOperation(Set, "address.city", "Lisbon", clock)
	require.NoError(err)
	require.NoError(cm.ApplyOperation(op, "peerA"))
	require.Contains(cm.Base.MemoryData, "Lisbon")
}

func TestApplyOperationDeleteMissingIntermediateIsNoop(t *testing.T) {
	require := require.New(t)

	base := memory.New("did:plc:abc", "individual", `{}`)
	cm := NewCrdtMemory(base, LastWriterWins)

	clock := NewVectorClock()
	op, err := NewOperation(Delete, "missing.nested", nil, clock)
	require.NoError(err)
	require.NoError(cm.ApplyOperation(op, "peerA"))
}

func TestApplyOperationAppendArray(t *testing.T) {
	require := require.New(t)

	base := memory.New("did:plc:abc", "individual", `{"tags":["a"]}`)
	cm := NewCrdtMemory(base, LastWriterWins)

	clock := NewVectorClock()
	op, err := NewOperation(Append, "tags", "b", clock)
	require.NoError(err)
	require.NoError(cm.ApplyOperation(op, "peerA"))
	require.Contains(cm.Base.MemoryData, `"a"`)
	require.Contains(cm.Base.MemoryData, `"b"`)
}

func TestMergeWithLessAppliesMissingOps(t *testing.T) {
	require := require.New(t)

	base1 := memory.New("did:plc:abc", "individual", `{}`)
	local := NewCrdtMemory(base1, LastWriterWins)

	base2 := memory.New("did:plc:abc", "individual", `{}`)
	remote := NewCrdtMemory(base2, LastWriterWins)

	clock := NewVectorClock()
	clock.Increment("peerB")
	op, err := NewOperation(Set, "first_name", "Remote", clock)
	require.NoError(err)
	require.NoError(remote.ApplyOperation(op, "peerB"))

	conflicts, err := local.MergeWith(remote, "peerA")
	require.NoError(err)
	require.Empty(conflicts)
	require.Contains(local.Base.MemoryData, "Remote")
}

func TestMergeWithConcurrentLastWriterWins(t *testing.T) {
	require := require.New(t)

	t0 := time.Now().UTC()

	baseA := memory.New("did:plc:abc", "individual", `{}`)
	peerA := NewCrdtMemory(baseA, LastWriterWins)
	clockA := NewVectorClock()
	clockA.Increment("peerA")
	opA := &MemoryOperation{OperationID: uuid.New(), OperationType: Set, FieldPath: "first_name", Value: mustJSON("A"), VectorClock: clockA, Timestamp: t0}
	require.NoError(peerA.ApplyOperation(opA, "peerA"))

	baseB := memory.New("did:plc:abc", "individual", `{}`)
	peerB := NewCrdtMemory(baseB, LastWriterWins)
	clockB := NewVectorClock()
	clockB.Increment("peerB")
	opB := &MemoryOperation{OperationID: uuid.New(), OperationType: Set, FieldPath: "first_name", Value: mustJSON("B"), VectorClock: clockB, Timestamp: t0.Add(time.Second)}
	require.NoError(peerB.ApplyOperation(opB, "peerB"))

	// clocks are concurrent: disjoint peer keys.
	require.Equal(Concurrent, peerA.Clock.Compare(peerB.Clock))

	conflictsA, err := peerA.MergeWith(peerB, "peerA")
	require.NoError(err)
	require.Empty(conflictsA)
	require.Contains(peerA.Base.MemoryData, "B")
}

func TestMergeWithConcurrentManualResolutionRecordsConflict(t *testing.T) {
	require := require.New(t)

	t0 := time.Now().UTC()

	baseA := memory.New("did:plc:abc", "individual", `{}`)
	peerA := NewCrdtMemory(baseA, ManualResolution)
	clockA := NewVectorClock()
	clockA.Increment("peerA")
	opA := &MemoryOperation{OperationID: uuid.New(), OperationType: Set, FieldPath: "first_name", Value: mustJSON("A"), VectorClock: clockA, Timestamp: t0}
	require.NoError(peerA.ApplyOperation(opA, "peerA"))

	baseB := memory.New("did:plc:abc", "individual", `{}`)
	peerB := NewCrdtMemory(baseB, ManualResolution)
	clockB := NewVectorClock()
	clockB.Increment("peerB")
	opB := &MemoryOperation{OperationID: uuid.New(), OperationType: Set, FieldPath: "first_name", Value: mustJSON("B"), VectorClock: clockB, Timestamp: t0.Add(time.Second)}
	require.NoError(peerB.ApplyOperation(opB, "peerB"))

	conflicts, err := peerA.MergeWith(peerB, "peerA")
	require.NoError(err)
	require.Len(conflicts, 1)
	require.Equal(ContentMismatch, conflicts[0].Reason)
	require.Contains(peerA.Base.MemoryData, "A")
	require.NotContains(peerA.Base.MemoryData, "B")
}

func TestMergeIdempotence(t *testing.T) {
	require := require.New(t)

	baseA := memory.New("did:plc:abc", "individual", `{}`)
	local := NewCrdtMemory(baseA, LastWriterWins)

	baseB := memory.New("did:plc:abc", "individual", `{}`)
	remote := NewCrdtMemory(baseB, LastWriterWins)
	clock := NewVectorClock()
	clock.Increment("peerB")
	op, err := NewOperation(Set, "first_name", "Remote", clock)
	require.NoError(err)
	require.NoError(remote.ApplyOperation(op, "peerB"))

	_, err = local.MergeWith(remote, "peerA")
	require.NoError(err)
	hashOnce := local.Base.ContentHash
	opsOnce := len(local.Ops)

	_, err = local.MergeWith(remote, "peerA")
	require.NoError(err)
	require.Equal(hashOnce, local.Base.ContentHash)
	require.Equal(opsOnce, len(local.Ops))
}

func mustJSON(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}
