package access

import (
	"context"

	kferrors "github.com/keyfold/keyfold/internal/errors"
	"github.com/keyfold/keyfold/internal/store"
)

// Resolver computes a subject's effective role for a workspace or project
// from the membership graph.
type Resolver struct {
	store store.MembershipStore
}

// NewResolver creates a role resolver over the given membership records.
func NewResolver(s store.MembershipStore) *Resolver {
	return &Resolver{store: s}
}

// WorkspaceRole returns the subject's effective role in a workspace. The
// workspace creator is always owner; otherwise the highest-ranked active
// team membership in the workspace wins. RoleNone means no access.
func (r *Resolver) WorkspaceRole(ctx context.Context, subjectID, workspaceID string) (Role, error) {
	ws, err := r.store.Workspace(ctx, workspaceID)
	if err != nil {
		return RoleNone, err
	}
	if ws.CreatedBy == subjectID {
		return RoleOwner, nil
	}

	teams, err := r.store.TeamsInWorkspace(ctx, workspaceID)
	if err != nil {
		return RoleNone, err
	}
	return r.highestTeamRole(ctx, subjectID, teams)
}

// ProjectRole returns the subject's effective role on a project. The project
// creator is always owner; otherwise the highest-ranked active membership
// across the teams linked to the project wins.
func (r *Resolver) ProjectRole(ctx context.Context, subjectID, projectID string) (Role, error) {
	project, err := r.store.Project(ctx, projectID)
	if err != nil {
		return RoleNone, err
	}
	if project.UserID == subjectID {
		return RoleOwner, nil
	}

	teams, err := r.store.TeamsForProject(ctx, projectID)
	if err != nil {
		return RoleNone, err
	}
	return r.highestTeamRole(ctx, subjectID, teams)
}

// highestTeamRole collects the subject's active memberships across teams and
// returns the highest-ranked role found. Pending memberships do not count.
func (r *Resolver) highestTeamRole(ctx context.Context, subjectID string, teams []*store.TeamRecord) (Role, error) {
	var candidates []Role
	for _, team := range teams {
		member, err := r.store.TeamUser(ctx, team.ID, subjectID)
		if kferrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return RoleNone, err
		}
		if member.Status != store.MemberActive {
			continue
		}
		candidates = append(candidates, Role(member.Role))
	}
	return highest(candidates), nil
}
