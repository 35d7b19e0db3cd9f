// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package syncer

import (
	"context"

	"github.com/okazakov/go-spend-sync/internal/docstore"
)

// GroupsCollection is the document collection holding shared groups.
const GroupsCollection = "groups"

// SnapshotSource opens push subscriptions on group documents. The reader
// does not care whether snapshots arrive straight from the store (embedded
// deployments) or over the websocket bridge (remote agents); both
// implement this interface.
type SnapshotSource interface {
	Watch(ctx context.Context, groupID string) (docstore.Subscription, error)
}

// StoreSource serves snapshots directly from a document store.
type StoreSource struct {
	store docstore.Store
}

// NewStoreSource returns a SnapshotSource over store.
func NewStoreSource(store docstore.Store) *StoreSource {
	return &StoreSource{store: store}
}

func (s *StoreSource) Watch(ctx context.Context, groupID string) (docstore.Subscription, error) {
	return s.store.Watch(ctx, docstore.Ref{Collection: GroupsCollection, ID: groupID})
}
