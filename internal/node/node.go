// Package node defines the structural list entity shared by the storage
// adapter, mutation engine, and wire layer.
package node

import "github.com/google/uuid"

// Node is a single element of the persisted doubly-linked list. It carries
// no payload: only the structural pointers and the optimistic-lock version.
type Node struct {
	ID      uuid.UUID  `json:"id"`
	Prev    *uuid.UUID `json:"prev"`
	Next    *uuid.UUID `json:"next"`
	Version int64      `json:"version"`
}

// IsHead reports whether n has no predecessor.
func (n Node) IsHead() bool { return n.Prev == nil }

// IsTail reports whether n has no successor.
func (n Node) IsTail() bool { return n.Next == nil }
