package access

import (
	"context"
	"time"

	kferrors "github.com/keyfold/keyfold/internal/errors"
	"github.com/keyfold/keyfold/internal/events"
	"github.com/keyfold/keyfold/internal/logging"
	"github.com/keyfold/keyfold/internal/store"
)

// Manager mutates team memberships. Every mutation requires a managerial
// actor and re-checks the last-admin invariant before touching the store.
type Manager struct {
	store    store.MembershipStore
	resolver *Resolver
	sink     events.Publisher
	logger   *logging.Logger
}

// NewManager creates a membership manager.
func NewManager(s store.MembershipStore, sink events.Publisher, logger *logging.Logger) *Manager {
	if sink == nil {
		sink = events.Discard{}
	}
	return &Manager{store: s, resolver: NewResolver(s), sink: sink, logger: logger}
}

// requireManage fails unless the actor holds admin or owner in the team's
// workspace.
func (m *Manager) requireManage(ctx context.Context, actor, teamID string) error {
	team, err := m.store.Team(ctx, teamID)
	if err != nil {
		return err
	}
	role, err := m.resolver.WorkspaceRole(ctx, actor, team.WorkspaceID)
	if err != nil {
		return err
	}
	if !role.IsManagerial() {
		return kferrors.ForbiddenError{
			Subject: actor,
			Action:  "manage members of team " + teamID,
			Reason:  "requires admin or owner",
		}
	}
	return nil
}

// ChangeMemberRole sets a member's role. Demoting the last remaining
// admin or owner of a team fails with an invariant violation.
func (m *Manager) ChangeMemberRole(ctx context.Context, teamID, userID string, newRole Role, actor string) error {
	if err := m.requireManage(ctx, actor, teamID); err != nil {
		return err
	}

	member, err := m.store.TeamUser(ctx, teamID, userID)
	if err != nil {
		return err
	}

	oldRole := Role(member.Role)
	if oldRole.IsManagerial() && !newRole.IsManagerial() {
		if err := m.requireAnotherAdmin(ctx, teamID, userID); err != nil {
			return err
		}
	}

	member.Role = string(newRole)
	if err := m.store.UpsertTeamUser(ctx, member); err != nil {
		return err
	}

	m.logger.Info("changed role of %s in team %s: %s -> %s", userID, teamID, oldRole, newRole)
	m.sink.Publish(events.Event{
		Type:      events.TypeRoleChanged,
		Actor:     actor,
		Timestamp: time.Now(),
		Metadata: map[string]string{
			"team_id":  teamID,
			"user_id":  userID,
			"old_role": string(oldRole),
			"new_role": string(newRole),
		},
	})
	return nil
}

// RemoveMember deletes a membership row. Removing the last remaining admin
// or owner of a team fails with an invariant violation.
func (m *Manager) RemoveMember(ctx context.Context, teamID, userID, actor string) error {
	if err := m.requireManage(ctx, actor, teamID); err != nil {
		return err
	}

	member, err := m.store.TeamUser(ctx, teamID, userID)
	if err != nil {
		return err
	}

	if Role(member.Role).IsManagerial() {
		if err := m.requireAnotherAdmin(ctx, teamID, userID); err != nil {
			return err
		}
	}

	if err := m.store.DeleteTeamUser(ctx, teamID, userID); err != nil {
		return err
	}

	m.logger.Info("removed %s from team %s", userID, teamID)
	m.sink.Publish(events.Event{
		Type:      events.TypeRoleChanged,
		Actor:     actor,
		Timestamp: time.Now(),
		Metadata: map[string]string{
			"team_id":  teamID,
			"user_id":  userID,
			"old_role": member.Role,
			"new_role": "",
		},
	})
	return nil
}

// requireAnotherAdmin fails unless some other active member of the team
// holds admin or owner.
func (m *Manager) requireAnotherAdmin(ctx context.Context, teamID, excludeUserID string) error {
	members, err := m.store.TeamUsers(ctx, teamID)
	if err != nil {
		return err
	}
	for _, member := range members {
		if member.UserID == excludeUserID {
			continue
		}
		if member.Status != store.MemberActive {
			continue
		}
		if Role(member.Role).IsManagerial() {
			return nil
		}
	}
	return kferrors.InvariantError{Message: "cannot remove the last admin"}
}
