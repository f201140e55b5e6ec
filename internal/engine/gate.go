package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/internal/audit"
	"github.com/arbiterhq/arbiter/internal/catalog"
	"github.com/arbiterhq/arbiter/internal/grants"
	"github.com/arbiterhq/arbiter/internal/users"
)

// CanGrant applies the gate rules in order: the granter must exist and be
// active, the grantee must exist and be active, the permission must exist,
// the granter's rank must manage the grantee, HIGH or CRITICAL risk requires
// an admin granter, the granter must hold the permission themselves, and the
// grantee must already satisfy the permission's direct dependencies. The
// first failing rule decides.
func (s *Service) CanGrant(ctx context.Context, granterID, granteeID uuid.UUID, code string) (Decision, error) {
	d, _, err := s.evaluateGrant(ctx, granterID, granteeID, code)
	return d, err
}

// evaluateActors runs the identity and rank rules shared by grants, revokes
// and expiry extensions.
func (s *Service) evaluateActors(ctx context.Context, granterID, granteeID uuid.UUID, code string) (Decision, users.User, catalog.Permission, error) {
	var zeroUser users.User
	var zeroPerm catalog.Permission

	granter, err := s.usersRepo.GetUser(ctx, granterID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return refuse(ReasonGranterNotFound), zeroUser, zeroPerm, nil
		}
		return Decision{}, zeroUser, zeroPerm, err
	}
	if !granter.IsActive {
		return refuse(ReasonGranterInactive), zeroUser, zeroPerm, nil
	}

	grantee, err := s.usersRepo.GetUser(ctx, granteeID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return refuse(ReasonGranteeNotFound), zeroUser, zeroPerm, nil
		}
		return Decision{}, zeroUser, zeroPerm, err
	}
	if !grantee.IsActive {
		return refuse(ReasonGranteeInactive), zeroUser, zeroPerm, nil
	}

	perm, err := s.catalog.PermissionByCode(ctx, code)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return refuse(ReasonUnknownPermission), zeroUser, zeroPerm, nil
		}
		return Decision{}, zeroUser, zeroPerm, err
	}

	if !granter.Type.CanManage(grantee.Type) {
		return refuse(ReasonCannotManage), zeroUser, zeroPerm, nil
	}

	return Decision{Allowed: true}, granter, perm, nil
}

func (s *Service) evaluateGrant(ctx context.Context, granterID, granteeID uuid.UUID, code string) (Decision, catalog.Permission, error) {
	d, granter, perm, err := s.evaluateActors(ctx, granterID, granteeID, code)
	if err != nil || !d.Allowed {
		return d, perm, err
	}

	// the risk rule outranks possession: a junior granter is refused here
	// even when they hold the permission themselves
	if perm.RiskLevel.Elevated() && !granter.Type.IsAdmin() {
		return refuse(ReasonElevatedRisk), perm, nil
	}

	granterHeld, err := s.heldCodes(ctx, granterID)
	if err != nil {
		return Decision{}, perm, err
	}
	if _, ok := granterHeld[code]; !ok {
		return refuse(ReasonGranterLacksCode), perm, nil
	}

	granteeHeld, err := s.heldCodes(ctx, granteeID)
	if err != nil {
		return Decision{}, perm, err
	}
	missing, err := s.catalog.Missing(ctx, granteeHeld, code)
	if err != nil {
		return Decision{}, perm, err
	}
	if len(missing) > 0 {
		d := refuse(ReasonMissingDeps)
		d.MissingDependencies = missing
		return d, perm, nil
	}

	return Decision{Allowed: true}, perm, nil
}

// Grant gives the grantee a permanent direct grant after passing the gate.
func (s *Service) Grant(ctx context.Context, granterID, granteeID uuid.UUID, code string) (OpResult, error) {
	res, err := s.grantOne(ctx, granterID, granteeID, code, nil, "")
	if err != nil {
		return OpResult{}, err
	}
	s.recordGrant(ctx, granterID, granteeID, code, nil, "", res)
	return res, nil
}

// GrantTemporary gives the grantee a direct grant that stops counting at
// expiresAt. Temporary grants always carry an operator-supplied reason.
func (s *Service) GrantTemporary(ctx context.Context, granterID, granteeID uuid.UUID, code string, expiresAt time.Time, reason string) (OpResult, error) {
	if reason == "" {
		res := opRefused(ReasonReasonRequired)
		s.recordGrant(ctx, granterID, granteeID, code, &expiresAt, reason, res)
		return res, nil
	}
	if !expiresAt.After(s.now()) {
		res := opRefused(ReasonExpiryInPast)
		s.recordGrant(ctx, granterID, granteeID, code, &expiresAt, reason, res)
		return res, nil
	}
	res, err := s.grantOne(ctx, granterID, granteeID, code, &expiresAt, reason)
	if err != nil {
		return OpResult{}, err
	}
	s.recordGrant(ctx, granterID, granteeID, code, &expiresAt, reason, res)
	return res, nil
}

// grantOne runs the gate and inserts the grant without audit. Callers decide
// whether the action is recorded on its own or inside a batch entry.
func (s *Service) grantOne(ctx context.Context, granterID, granteeID uuid.UUID, code string, expiresAt *time.Time, reason string) (OpResult, error) {
	d, perm, err := s.evaluateGrant(ctx, granterID, granteeID, code)
	if err != nil {
		return OpResult{}, err
	}
	if !d.Allowed {
		res := opRefused(d.Reason)
		res.MissingDependencies = d.MissingDependencies
		return res, nil
	}

	err = s.grantsRepo.InsertGrant(ctx, granteeID, perm.ID, &granterID, expiresAt, reason)
	if err != nil {
		if errors.Is(err, grants.ErrDuplicateGrant) {
			return opRefused(ReasonAlreadyGranted), nil
		}
		return OpResult{}, err
	}

	s.invalidateUser(ctx, granteeID)
	s.logger.Info("permission granted",
		"granter_id", granterID, "grantee_id", granteeID,
		"permission", code, "temporary", expiresAt != nil)
	return opOK, nil
}

func (s *Service) recordGrant(ctx context.Context, granterID, granteeID uuid.UUID, code string, expiresAt *time.Time, reason string, res OpResult) {
	action := audit.ActionGrant
	if !res.OK {
		action = audit.ActionGrantFailed
	} else if expiresAt != nil {
		action = audit.ActionGrantTemporary
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:    &granterID,
		Action:     action,
		EntityType: audit.EntityUserPermission,
		EntityID:   granteeID.String(),
		Changes: audit.GrantChange{
			PermissionCode: code,
			ExpiresAt:      expiresAt,
			Reason:         reason,
			Refusal:        res.Reason,
			MissingDeps:    res.MissingDependencies,
		},
		Success:      res.OK,
		ErrorMessage: res.Reason,
	})
}

// Revoke removes a direct grant. Permissions that arrive through a role
// cannot be revoked here; the role assignment has to change instead.
func (s *Service) Revoke(ctx context.Context, actorID, userID uuid.UUID, code string) (OpResult, error) {
	res, err := s.revokeOne(ctx, actorID, userID, code)
	if err != nil {
		return OpResult{}, err
	}
	action := audit.ActionRevoke
	if !res.OK {
		action = audit.ActionRevokeFailed
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:    &actorID,
		Action:     action,
		EntityType: audit.EntityUserPermission,
		EntityID:   userID.String(),
		Changes: audit.RevokeChange{
			PermissionCode: code,
			Refusal:        res.Reason,
		},
		Success:      res.OK,
		ErrorMessage: res.Reason,
	})
	return res, nil
}

// revokeOne applies only the identity and rank rules: taking a permission
// away never requires the actor to hold it.
func (s *Service) revokeOne(ctx context.Context, actorID, userID uuid.UUID, code string) (OpResult, error) {
	d, _, perm, err := s.evaluateActors(ctx, actorID, userID, code)
	if err != nil {
		return OpResult{}, err
	}
	if !d.Allowed {
		return opRefused(d.Reason), nil
	}

	err = s.grantsRepo.DeleteGrant(ctx, userID, perm.ID)
	if err != nil {
		if errors.Is(err, grants.ErrGrantNotFound) {
			return opRefused(ReasonNotDirectlyHeld), nil
		}
		return OpResult{}, err
	}

	s.invalidateUser(ctx, userID)
	s.logger.Info("permission revoked",
		"actor_id", actorID, "user_id", userID, "permission", code)
	return opOK, nil
}

// ExtendTemporary moves the expiry of an existing temporary grant.
func (s *Service) ExtendTemporary(ctx context.Context, actorID, userID uuid.UUID, code string, newExpiry time.Time) (OpResult, error) {
	if !newExpiry.After(s.now()) {
		return opRefused(ReasonExpiryInPast), nil
	}

	d, _, perm, err := s.evaluateActors(ctx, actorID, userID, code)
	if err != nil {
		return OpResult{}, err
	}
	if !d.Allowed {
		return opRefused(d.Reason), nil
	}

	oldExpiry, err := s.grantsRepo.UpdateGrantExpiry(ctx, userID, perm.ID, newExpiry)
	if err != nil {
		if errors.Is(err, grants.ErrGrantNotFound) {
			return opRefused(ReasonNotTemporary), nil
		}
		return OpResult{}, err
	}

	s.invalidateUser(ctx, userID)
	s.audit.Record(ctx, audit.Entry{
		ActorID:    &actorID,
		Action:     audit.ActionExtendTemporary,
		EntityType: audit.EntityUserPermission,
		EntityID:   userID.String(),
		Changes: audit.ExtendChange{
			PermissionCode: code,
			OldExpiresAt:   oldExpiry,
			NewExpiresAt:   newExpiry,
		},
		Success: true,
	})
	return opOK, nil
}

// ElevateUserType moves a user to a different type. The actor must be able
// to manage both the user's current type and the requested one.
func (s *Service) ElevateUserType(ctx context.Context, actorID, userID uuid.UUID, newType users.Type) (OpResult, error) {
	record := func(res OpResult, prev users.Type) OpResult {
		action := audit.ActionElevate
		if !res.OK {
			action = audit.ActionElevateFailed
		}
		s.audit.Record(ctx, audit.Entry{
			ActorID:    &actorID,
			Action:     action,
			EntityType: audit.EntityUser,
			EntityID:   userID.String(),
			Changes: audit.ElevateChange{
				PreviousType: string(prev),
				NewType:      string(newType),
				Refusal:      res.Reason,
			},
			Success:      res.OK,
			ErrorMessage: res.Reason,
		})
		return res
	}

	if !newType.Valid() {
		return record(opRefused(ReasonInvalidUserType), ""), nil
	}

	actor, err := s.usersRepo.GetUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return record(opRefused(ReasonGranterNotFound), ""), nil
		}
		return OpResult{}, err
	}
	if !actor.IsActive {
		return record(opRefused(ReasonGranterInactive), ""), nil
	}

	target, err := s.usersRepo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return record(opRefused(ReasonGranteeNotFound), ""), nil
		}
		return OpResult{}, err
	}

	if !actor.Type.CanManage(target.Type) || !actor.Type.CanManage(newType) {
		return record(opRefused(ReasonCannotAssignType), target.Type), nil
	}

	prev, err := s.usersRepo.UpdateUserType(ctx, userID, newType)
	if err != nil {
		return OpResult{}, err
	}

	s.invalidateUser(ctx, userID)
	s.logger.Info("user type changed",
		"actor_id", actorID, "user_id", userID,
		"previous_type", prev, "new_type", newType)
	return record(opOK, prev), nil
}

// CleanupExpired removes every grant whose expiry has passed and drops the
// cached permission sets of the affected users. The whole sweep is one audit
// entry regardless of how many grants it removed.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	now := s.now().UTC()
	affected, err := s.grantsRepo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	// one row per removed grant; invalidate each user once
	seen := make(map[uuid.UUID]struct{}, len(affected))
	for _, userID := range affected {
		if _, done := seen[userID]; done {
			continue
		}
		seen[userID] = struct{}{}
		s.invalidateUser(ctx, userID)
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     audit.ActionCleanupExpired,
		EntityType: audit.EntitySystem,
		EntityID:   "expired_grants",
		Changes: audit.CleanupChange{
			CleanedCount: len(affected),
			SweptAt:      now,
		},
		Success: true,
	})
	if len(affected) > 0 {
		s.logger.Info("expired grants swept", "cleaned", len(affected))
	}
	return len(affected), nil
}
