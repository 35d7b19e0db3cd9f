// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/okazakov/go-spend-sync/internal/docid"
	"github.com/okazakov/go-spend-sync/internal/docstore"
	"github.com/okazakov/go-spend-sync/internal/guard"
	"github.com/okazakov/go-spend-sync/internal/logger"
	"github.com/okazakov/go-spend-sync/models"
)

// MappingService manages merchant-to-category mappings. The document ID
// is derived deterministically from the normalized merchant name, so two
// clients that learn the same merchant at the same time converge on one
// document: the loser of the create race re-reads inside the guard and
// sees the winner's mapping.
type MappingService struct {
	store docstore.Store
	guard *guard.Guard
	log   *logger.Logger
}

// NewMappingService returns a MappingService.
func NewMappingService(store docstore.Store, g *guard.Guard, log *logger.Logger) *MappingService {
	return &MappingService{store: store, guard: g, log: log}
}

func mappingRef(merchant string) docstore.Ref {
	return docstore.Ref{Collection: MappingsCollection, ID: docid.ForKey(merchant)}
}

// Learn records a merchant-category association. If a mapping for the
// merchant already exists it wins and is returned unchanged; learning is
// first-writer-wins, recategorizing is explicit via Recategorize.
func (s *MappingService) Learn(ctx context.Context, actor, merchant, category string) (models.MerchantMapping, error) {
	now, err := s.store.ServerTime(ctx)
	if err != nil {
		return models.MerchantMapping{}, fmt.Errorf("server time: %w", err)
	}

	ref := mappingRef(merchant)
	var result models.MerchantMapping

	err = s.guard.Mutate(ctx, ref, func(cur docstore.Doc) ([]byte, bool, error) {
		if cur.Exists {
			if err := cur.Decode(&result); err != nil {
				return nil, false, fmt.Errorf("decode mapping %s: %w", ref.ID, err)
			}
			return nil, false, nil
		}

		result = models.MerchantMapping{
			ID:        ref.ID,
			Name:      docid.Normalize(merchant),
			Category:  category,
			CreatedBy: actor,
			CreatedAt: now,
			UpdatedAt: now,
		}
		data, err := json.Marshal(result)
		if err != nil {
			return nil, false, fmt.Errorf("encode mapping %s: %w", ref.ID, err)
		}
		return data, true, nil
	})
	if err != nil {
		return models.MerchantMapping{}, err
	}
	return result, nil
}

// Recategorize changes an existing mapping's category.
func (s *MappingService) Recategorize(ctx context.Context, merchant, category string) error {
	now, err := s.store.ServerTime(ctx)
	if err != nil {
		return fmt.Errorf("server time: %w", err)
	}

	ref := mappingRef(merchant)
	return s.guard.Mutate(ctx, ref, func(cur docstore.Doc) ([]byte, bool, error) {
		if !cur.Exists {
			return nil, false, fmt.Errorf("mapping %s: %w: %w", ref.ID, ErrNotFound, guard.ErrPreconditionNotMet)
		}

		var mapping models.MerchantMapping
		if err := cur.Decode(&mapping); err != nil {
			return nil, false, fmt.Errorf("decode mapping %s: %w", ref.ID, err)
		}
		if mapping.Category == category {
			return nil, false, nil
		}
		mapping.Category = category
		mapping.UpdatedAt = now

		data, err := json.Marshal(mapping)
		if err != nil {
			return nil, false, fmt.Errorf("encode mapping %s: %w", ref.ID, err)
		}
		return data, true, nil
	})
}

// Resolve looks up the mapping for a merchant name.
func (s *MappingService) Resolve(ctx context.Context, merchant string) (models.MerchantMapping, bool, error) {
	ref := mappingRef(merchant)
	doc, err := s.store.Get(ctx, ref)
	if err != nil {
		return models.MerchantMapping{}, false, fmt.Errorf("read mapping %s: %w", ref.ID, err)
	}
	if !doc.Exists {
		return models.MerchantMapping{}, false, nil
	}

	var mapping models.MerchantMapping
	if err = doc.Decode(&mapping); err != nil {
		return models.MerchantMapping{}, false, fmt.Errorf("decode mapping %s: %w", ref.ID, err)
	}
	return mapping, true, nil
}
