package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/internal/audit"
	"github.com/arbiterhq/arbiter/internal/catalog"
	"github.com/arbiterhq/arbiter/internal/grants"
	"github.com/arbiterhq/arbiter/internal/hierarchy"
	"github.com/arbiterhq/arbiter/internal/users"
)

// Bulk operations apply one action across many targets with partial success:
// each target is gated independently and a refusal never aborts the batch.
// The batch produces exactly one audit entry.

// BulkGrant grants several permissions to one user.
func (s *Service) BulkGrant(ctx context.Context, granterID, granteeID uuid.UUID, codes []string, expiresAt *time.Time) (BulkResult, error) {
	var result BulkResult
	for _, code := range codes {
		res, err := s.grantOne(ctx, granterID, granteeID, code, expiresAt, "")
		if err != nil {
			return BulkResult{}, err
		}
		result.add(code, res)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:    &granterID,
		Action:     audit.ActionBulkGrant,
		EntityType: audit.EntityUserPermission,
		EntityID:   granteeID.String(),
		Changes: audit.BulkChange{
			Items:        result.itemNames(),
			SuccessCount: result.SuccessCount,
			FailedCount:  result.FailedCount,
			ExpiresAt:    expiresAt,
		},
		Success: result.FailedCount == 0,
	})
	return result, nil
}

// BulkRevoke removes several direct grants from one user.
func (s *Service) BulkRevoke(ctx context.Context, actorID, userID uuid.UUID, codes []string) (BulkResult, error) {
	var result BulkResult
	for _, code := range codes {
		res, err := s.revokeOne(ctx, actorID, userID, code)
		if err != nil {
			return BulkResult{}, err
		}
		result.add(code, res)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:    &actorID,
		Action:     audit.ActionBulkRevoke,
		EntityType: audit.EntityUserPermission,
		EntityID:   userID.String(),
		Changes: audit.BulkChange{
			Items:        result.itemNames(),
			SuccessCount: result.SuccessCount,
			FailedCount:  result.FailedCount,
		},
		Success: result.FailedCount == 0,
	})
	return result, nil
}

// BulkAssignRoles assigns several roles to one user.
func (s *Service) BulkAssignRoles(ctx context.Context, actorID, userID uuid.UUID, roleIDs []uuid.UUID) (BulkResult, error) {
	var result BulkResult
	for _, roleID := range roleIDs {
		if _, err := s.hierarchy.RoleByID(ctx, roleID); err != nil {
			if errors.Is(err, hierarchy.ErrRoleNotFound) {
				result.add(roleID.String(), opRefused(ReasonRoleNotFound))
				continue
			}
			return BulkResult{}, err
		}
		res, err := s.assignRoleOne(ctx, actorID, userID, roleID)
		if err != nil {
			return BulkResult{}, err
		}
		result.add(roleID.String(), res)
	}
	s.recordBulkRoles(ctx, actorID, audit.ActionBulkAssignRoles, userID.String(), result)
	return result, nil
}

// BulkRemoveRoles detaches several roles from one user.
func (s *Service) BulkRemoveRoles(ctx context.Context, actorID, userID uuid.UUID, roleIDs []uuid.UUID) (BulkResult, error) {
	var result BulkResult
	for _, roleID := range roleIDs {
		res, err := s.removeRoleOne(ctx, userID, roleID)
		if err != nil {
			return BulkResult{}, err
		}
		result.add(roleID.String(), res)
	}
	s.recordBulkRoles(ctx, actorID, audit.ActionBulkRemoveRoles, userID.String(), result)
	return result, nil
}

// BulkAssignPermissionsToRole attaches many permissions to one role.
func (s *Service) BulkAssignPermissionsToRole(ctx context.Context, actorID, roleID uuid.UUID, codes []string) (BulkResult, error) {
	var result BulkResult
	if _, err := s.hierarchy.RoleByID(ctx, roleID); err != nil {
		if errors.Is(err, hierarchy.ErrRoleNotFound) {
			for _, code := range codes {
				result.add(code, opRefused(ReasonRoleNotFound))
			}
			s.recordBulkRoles(ctx, actorID, audit.ActionBulkRolePerms, roleID.String(), result)
			return result, nil
		}
		return BulkResult{}, err
	}

	for _, code := range codes {
		perm, err := s.catalog.PermissionByCode(ctx, code)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				result.add(code, opRefused(ReasonUnknownPermission))
				continue
			}
			return BulkResult{}, err
		}
		err = s.hierarchy.AssignPermission(ctx, roleID, perm.ID)
		if err != nil {
			if errors.Is(err, hierarchy.ErrDuplicateRolePermission) {
				result.add(code, opRefused(ReasonAlreadyGranted))
				continue
			}
			return BulkResult{}, err
		}
		result.add(code, opOK)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:    &actorID,
		Action:     audit.ActionBulkRolePerms,
		EntityType: audit.EntityRolePermission,
		EntityID:   roleID.String(),
		Changes: audit.BulkChange{
			Items:        result.itemNames(),
			SuccessCount: result.SuccessCount,
			FailedCount:  result.FailedCount,
		},
		Success: result.FailedCount == 0,
	})
	return result, nil
}

func (s *Service) assignRoleOne(ctx context.Context, actorID, userID, roleID uuid.UUID) (OpResult, error) {
	if _, err := s.usersRepo.GetUser(ctx, userID); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return opRefused(ReasonGranteeNotFound), nil
		}
		return OpResult{}, err
	}
	err := s.grantsRepo.AssignRole(ctx, userID, roleID, &actorID)
	if err != nil {
		if errors.Is(err, grants.ErrDuplicateAssignment) {
			return opRefused(ReasonAlreadyAssigned), nil
		}
		return OpResult{}, err
	}
	s.invalidateUser(ctx, userID)
	return opOK, nil
}

func (s *Service) removeRoleOne(ctx context.Context, userID, roleID uuid.UUID) (OpResult, error) {
	err := s.grantsRepo.RemoveRole(ctx, userID, roleID)
	if err != nil {
		if errors.Is(err, grants.ErrAssignmentNotFound) {
			return opRefused(ReasonNotAssigned), nil
		}
		return OpResult{}, err
	}
	s.invalidateUser(ctx, userID)
	return opOK, nil
}

func (s *Service) recordBulkRoles(ctx context.Context, actorID uuid.UUID, action audit.Action, entityID string, result BulkResult) {
	s.audit.Record(ctx, audit.Entry{
		ActorID:    &actorID,
		Action:     action,
		EntityType: audit.EntityUserRole,
		EntityID:   entityID,
		Changes: audit.BulkChange{
			Items:        result.itemNames(),
			SuccessCount: result.SuccessCount,
			FailedCount:  result.FailedCount,
		},
		Success: result.FailedCount == 0,
	})
}
