// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package resource

import (
	"fmt"
	"slices"
)

// Pool is the ordered catalogue of one resource category.
//
// The declaration order of resources is significant: it is the order in which
// free resources are handed out.
type Pool struct {
	id        string
	resources []Descriptor
	index     map[string]int
}

// NewPool creates a [Pool] with the given resources in the given order.
//
// It returns [ErrEmptyID] if the pool or any resource has no ID and
// [ErrDuplicateID] if a resource ID is used more than once.
func NewPool(id string, resources ...Descriptor) (*Pool, error) {
	if id == "" {
		return nil, fmt.Errorf("pool: %w", ErrEmptyID)
	}

	pool := &Pool{
		id:        id,
		resources: make([]Descriptor, 0, len(resources)),
		index:     make(map[string]int, len(resources)),
	}

	for idx, res := range resources {
		if res.ID == "" {
			return nil, fmt.Errorf("resource %d: %w", idx, ErrEmptyID)
		}

		if _, exists := pool.index[res.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, res.ID)
		}

		res.Tags = slices.Clone(res.Tags)

		pool.index[res.ID] = len(pool.resources)
		pool.resources = append(pool.resources, res)
	}

	return pool, nil
}

// ID returns the pool ID.
func (p *Pool) ID() string {
	return p.id
}

// Len returns the number of resources in the pool.
func (p *Pool) Len() int {
	return len(p.resources)
}

// ResourceIDs returns the resource IDs in declaration order.
func (p *Pool) ResourceIDs() []string {
	ids := make([]string, len(p.resources))
	for idx, res := range p.resources {
		ids[idx] = res.ID
	}

	return ids
}

// Resource returns the [Descriptor] with the given ID.
func (p *Pool) Resource(id string) (Descriptor, bool) {
	idx, exists := p.index[id]
	if !exists {
		return Descriptor{}, false
	}

	return p.resources[idx], true
}

// Resources returns all descriptors in declaration order.
func (p *Pool) Resources() []Descriptor {
	return slices.Clone(p.resources)
}
