package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"qa-escrow/internal/models"
	"qa-escrow/internal/repository"
)

// PauseContract blocks new questions and answers. Approvals and refunds
// keep working so locked deposits can always leave custody.
func (s *LedgerService) PauseContract(ctx context.Context, caller string) error {
	return s.setPaused(ctx, caller, true)
}

// UnpauseContract lifts a pause.
func (s *LedgerService) UnpauseContract(ctx context.Context, caller string) error {
	return s.setPaused(ctx, caller, false)
}

func (s *LedgerService) setPaused(ctx context.Context, caller string, paused bool) error {
	operation := "unpause_contract"
	eventType := models.LedgerEventContractUnpaused
	if paused {
		operation = "pause_contract"
		eventType = models.LedgerEventContractPaused
	}

	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		state, err := s.loadOwnedState(ctx, tx, caller)
		if err != nil {
			return err
		}
		state.Paused = paused
		if err := tx.SaveLedgerState(ctx, state); err != nil {
			return fmt.Errorf("failed to save pause flag: %w", err)
		}
		return nil
	})
	s.observe(operation, started, err)
	if err != nil {
		return err
	}

	log.Printf("[Ledger] Contract paused=%t by %s", paused, caller)

	event := models.NewLedgerEvent(eventType, s.clock.Now())
	event.Actor = caller
	s.events.Emit(event)
	return nil
}

// TransferOwnership hands the owner role to newOwner.
func (s *LedgerService) TransferOwnership(ctx context.Context, caller, newOwner string) error {
	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		state, err := s.loadOwnedState(ctx, tx, caller)
		if err != nil {
			return err
		}
		if !s.custodian.ValidateAddress(newOwner) {
			return reject(KindInvalidInput, CodeInvalidInput, "new owner %q is not a valid address", newOwner)
		}
		state.Owner = newOwner
		if err := tx.SaveLedgerState(ctx, state); err != nil {
			return fmt.Errorf("failed to save owner: %w", err)
		}
		return nil
	})
	s.observe("transfer_ownership", started, err)
	if err != nil {
		return err
	}

	log.Printf("[Ledger] Ownership transferred from %s to %s", caller, newOwner)

	event := models.NewLedgerEvent(models.LedgerEventOwnershipTransferred, s.clock.Now())
	event.Actor = caller
	event.Counterparty = newOwner
	s.events.Emit(event)
	return nil
}

func (s *LedgerService) loadOwnedState(
	ctx context.Context,
	tx *repository.Repository,
	caller string,
) (*models.LedgerState, error) {
	state, err := s.loadState(ctx, tx)
	if err != nil {
		return nil, err
	}
	if caller == "" || caller != state.Owner {
		return nil, reject(KindUnauthorized, CodeUnauthorized, "only the owner can perform this operation")
	}
	return state, nil
}
