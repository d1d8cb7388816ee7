package wsapi

import (
	"encoding/json"

	"github.com/erauner12/listd/internal/mutation"
	"github.com/erauner12/listd/internal/node"
	"github.com/google/uuid"
)

// clientMessage is the envelope every client->server frame decodes into in
// one pass; the handler dispatches on Type and then reads Prev or ID.
type clientMessage struct {
	Type string `json:"type"`
	Prev *uuid.UUID `json:"prev"`
	ID   *uuid.UUID `json:"id"`
}

const (
	typeAddNode    = "addNode"
	typeRemoveNode = "removeNode"

	typeNodes       = "nodes"
	typeNodeAdded   = "nodeAdded"
	typeNodeRemoved = "nodeRemoved"
	typeError       = "error"
)

// nodesMessage is sent once per new attach (spec §6, Snapshot Provider).
type nodesMessage struct {
	Type  string      `json:"type"`
	Nodes []node.Node `json:"nodes"`
}

func newNodesMessage(nodes []node.Node) nodesMessage {
	return nodesMessage{Type: typeNodes, Nodes: nodes}
}

// pointerUpdate is the wire shape of a single entry in updatedNodes: only
// the fields that actually changed are present, and a present field's value
// may itself be null (a node becoming head/tail).
type pointerUpdate struct {
	Prev *jsonNullableUUID `json:"prev,omitempty"`
	Next *jsonNullableUUID `json:"next,omitempty"`
}

// jsonNullableUUID marshals a **uuid.UUID-shaped "set to this id, or to
// null" value: the field is present (omitempty on the *outer* pointer keeps
// it out of the JSON when the pointer changed not at all), but its value
// can still legitimately be JSON null.
type jsonNullableUUID struct {
	id *uuid.UUID
}

func (j jsonNullableUUID) MarshalJSON() ([]byte, error) {
	if j.id == nil {
		return []byte("null"), nil
	}
	return json.Marshal(j.id)
}

func toWireUpdates(deltas map[uuid.UUID]mutation.PointerDelta) map[string]pointerUpdate {
	out := make(map[string]pointerUpdate, len(deltas))
	for id, d := range deltas {
		var u pointerUpdate
		if d.Prev != nil {
			u.Prev = &jsonNullableUUID{id: *d.Prev}
		}
		if d.Next != nil {
			u.Next = &jsonNullableUUID{id: *d.Next}
		}
		out[id.String()] = u
	}
	return out
}

type nodeAddedMessage struct {
	Type         string                   `json:"type"`
	CreatedNode  node.Node                `json:"createdNode"`
	UpdatedNodes map[string]pointerUpdate `json:"updatedNodes"`
}

func newNodeAddedMessage(r mutation.InsertResult) nodeAddedMessage {
	return nodeAddedMessage{
		Type:         typeNodeAdded,
		CreatedNode:  r.CreatedNode,
		UpdatedNodes: toWireUpdates(r.UpdatedNodes),
	}
}

type nodeRemovedMessage struct {
	Type          string                   `json:"type"`
	DeletedNodeID uuid.UUID                `json:"deletedNodeId"`
	UpdatedNodes  map[string]pointerUpdate `json:"updatedNodes"`
}

func newNodeRemovedMessage(r mutation.DeleteResult) nodeRemovedMessage {
	return nodeRemovedMessage{
		Type:          typeNodeRemoved,
		DeletedNodeID: r.DeletedNodeID,
		UpdatedNodes:  toWireUpdates(r.UpdatedNodes),
	}
}

type errorMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Operation string `json:"operation"`
}

func newErrorMessage(operation, message string) errorMessage {
	return errorMessage{Type: typeError, Message: message, Operation: operation}
}
