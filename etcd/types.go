package etcd

import (
	"errors"
	"fmt"
)

// Walk bounds of ListSubtree: zones below the root, nodes per zone, wires per node.
const (
	MaxZones = 64
	MaxNodes = 256
	MaxWires = 256
)

// etcd v2 error codes the client distinguishes.
const (
	errorCodeKeyNotFound       = 100
	errorCodeEventIndexCleared = 401
)

// Action is the kind of change reported by a watch.
type Action string

const (
	ActionGet              Action = "get"
	ActionSet              Action = "set"
	ActionCreate           Action = "create"
	ActionUpdate           Action = "update"
	ActionDelete           Action = "delete"
	ActionExpire           Action = "expire"
	ActionCompareAndSwap   Action = "compareAndSwap"
	ActionCompareAndDelete Action = "compareAndDelete"
)

// IsAdd reports whether the action makes a key present.
func (a Action) IsAdd() bool {
	switch a {
	case ActionSet, ActionCreate, ActionUpdate, ActionCompareAndSwap:
		return true
	}
	return false
}

// IsRemove reports whether the action makes a key absent.
func (a Action) IsRemove() bool {
	switch a {
	case ActionDelete, ActionExpire, ActionCompareAndDelete:
		return true
	}
	return false
}

// Node is a key or directory of the v2 keys API.
type Node struct {
	Key           string  `json:"key"`
	Value         *string `json:"value,omitempty"`
	Dir           bool    `json:"dir,omitempty"`
	Nodes         []*Node `json:"nodes,omitempty"`
	ModifiedIndex *uint64 `json:"modifiedIndex,omitempty"`
	CreatedIndex  uint64  `json:"createdIndex,omitempty"`
	TTL           int64   `json:"ttl,omitempty"`
}

// Response is the body of a successful keys API call.
type Response struct {
	Action   Action `json:"action"`
	Node     *Node  `json:"node,omitempty"`
	PrevNode *Node  `json:"prevNode,omitempty"`
}

// ErrorResponse is the body of a failed keys API call.
type ErrorResponse struct {
	ErrorCode int    `json:"errorCode"`
	Message   string `json:"message"`
	Cause     string `json:"cause,omitempty"`
	Index     uint64 `json:"index"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("etcd error %d: %s (%s)", e.ErrorCode, e.Message, e.Cause)
}

// KeyValue is a leaf collected by ListSubtree.
type KeyValue struct {
	Key           string
	Value         string
	ModifiedIndex uint64
}

// DiscoveryEvent is one change reported by Watch.
type DiscoveryEvent struct {
	Action        Action
	Key           string
	Value         string
	PrevValue     string
	ModifiedIndex uint64
}

// ErrIndexCleared is returned by Watch when the requested index has been
// compacted away. IndexClearedError carries the store's current index.
var ErrIndexCleared = errors.New("watch index cleared")

type IndexClearedError struct {
	Index uint64
}

func (e *IndexClearedError) Error() string {
	return fmt.Sprintf("%s, current index %d", ErrIndexCleared, e.Index)
}

func (e *IndexClearedError) Is(target error) bool {
	return target == ErrIndexCleared
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
