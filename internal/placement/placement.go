// Package placement implements the binary-tree placement allocator
// (spec.md §4.C): a breadth-first search for the first empty child
// slot under a root user, won by whichever concurrent attempt's CAS
// lands first. Grounded in the teacher's gasbank topup CAS pattern
// (services/gasbank/topup.go), generalized from a balance compare-
// and-swap to a child-pointer compare-and-swap.
package placement

import (
	"context"
	"fmt"

	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/store"
)

// Result is what placeUser returns on success (spec.md §4.C).
type Result struct {
	PlacedUnderID string
	Side          domain.Side
}

// Service places new users into the binary tree.
type Service struct {
	store store.Store
}

// New constructs a placement Service.
func New(s store.Store) *Service {
	return &Service{store: s}
}

// PlaceUser finds the first available slot for newUserID, preferring
// preferredSide when given, starting from placementID if non-empty
// else sponsorID (spec.md §4.C). Fails with domain.ErrNoPlacementRoot
// if neither root is given and domain.ErrNoSlot if exhaustive BFS
// finds no empty slot.
func (s *Service) PlaceUser(ctx context.Context, newUserID, sponsorID, placementID string, preferredSide domain.Side) (Result, error) {
	root := placementID
	if root == "" {
		root = sponsorID
	}
	if root == "" {
		return Result{}, domain.ErrNoPlacementRoot
	}
	if preferredSide == "" {
		preferredSide = domain.SideLeft
	}

	if res, ok, err := s.tryReserve(ctx, root, preferredSide, newUserID); err != nil {
		return Result{}, err
	} else if ok {
		return res, nil
	}
	if res, ok, err := s.tryReserve(ctx, root, preferredSide.Opposite(), newUserID); err != nil {
		return Result{}, err
	} else if ok {
		return res, nil
	}

	// BFS over the subtree, level by level, insertion order within a
	// level, preferred side first at each candidate (spec.md §4.C).
	queue := []string{root}
	visited := map[string]bool{root: true}
	for len(queue) > 0 {
		var next []string
		for _, candidateID := range queue {
			if res, ok, err := s.tryReserve(ctx, candidateID, preferredSide, newUserID); err != nil {
				return Result{}, err
			} else if ok {
				return res, nil
			}
			if res, ok, err := s.tryReserve(ctx, candidateID, preferredSide.Opposite(), newUserID); err != nil {
				return Result{}, err
			} else if ok {
				return res, nil
			}

			u, err := s.store.GetUser(ctx, candidateID)
			if err != nil {
				return Result{}, err
			}
			for _, childID := range []string{u.LeftChildID, u.RightChildID} {
				if childID != "" && !visited[childID] {
					visited[childID] = true
					next = append(next, childID)
				}
			}
		}
		queue = next
	}

	return Result{}, fmt.Errorf("%w: no slot found under root %s", domain.ErrNoSlot, root)
}

// tryReserve attempts the atomic "set child pointer if currently
// empty" CAS for one (candidateID, side) pair. ok=false with nil error
// means the slot was occupied (or lost a race) and the caller should
// keep searching; a non-nil error is any other failure.
func (s *Service) tryReserve(ctx context.Context, candidateID string, side domain.Side, newUserID string) (Result, bool, error) {
	err := s.store.ReserveChildSlot(ctx, candidateID, side, newUserID)
	if err == nil {
		return Result{PlacedUnderID: candidateID, Side: side}, true, nil
	}
	if domain.IsConflict(err) {
		return Result{}, false, nil
	}
	return Result{}, false, err
}
