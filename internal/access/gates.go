package access

import (
	"context"

	kferrors "github.com/keyfold/keyfold/internal/errors"
	"github.com/keyfold/keyfold/internal/store"
)

// Checker applies the authorization gates every mutating entry point runs
// through.
type Checker struct {
	resolver *Resolver
	store    store.MembershipStore
}

// NewChecker creates a gate checker.
func NewChecker(resolver *Resolver, s store.MembershipStore) *Checker {
	return &Checker{resolver: resolver, store: s}
}

// Resolver exposes the underlying resolver for read-only role queries.
func (c *Checker) Resolver() *Resolver {
	return c.resolver
}

// projectRole resolves the subject's role and applies the blocked-project
// rule: a blocked project is only reachable by owner or admin, regardless of
// the normal permission the caller would otherwise have.
func (c *Checker) projectRole(ctx context.Context, subjectID, projectID string) (Role, error) {
	project, err := c.store.Project(ctx, projectID)
	if err != nil {
		return RoleNone, err
	}
	role, err := c.resolver.ProjectRole(ctx, subjectID, projectID)
	if err != nil {
		return RoleNone, err
	}
	if project.IsBlocked && !role.IsManagerial() {
		return RoleNone, kferrors.ForbiddenError{
			Subject: subjectID,
			Action:  "access project " + projectID,
			Reason:  "project is blocked",
		}
	}
	return role, nil
}

// RequireProjectMember permits any subject with a role on the project.
// Used for read-only listing.
func (c *Checker) RequireProjectMember(ctx context.Context, subjectID, projectID string) error {
	role, err := c.projectRole(ctx, subjectID, projectID)
	if err != nil {
		return err
	}
	if role == RoleNone {
		return kferrors.ForbiddenError{
			Subject: subjectID,
			Action:  "read project " + projectID,
			Reason:  "no role on project",
		}
	}
	return nil
}

// RequireProjectEdit permits subjects allowed to mutate secrets:
// developer and above.
func (c *Checker) RequireProjectEdit(ctx context.Context, subjectID, projectID string) error {
	role, err := c.projectRole(ctx, subjectID, projectID)
	if err != nil {
		return err
	}
	if !role.AtLeast(RoleDeveloper) {
		return kferrors.ForbiddenError{
			Subject: subjectID,
			Action:  "edit secrets in project " + projectID,
			Reason:  "requires developer role or higher",
		}
	}
	return nil
}

// RequireProjectManage permits configuration-changing calls: owner or admin
// only.
func (c *Checker) RequireProjectManage(ctx context.Context, subjectID, projectID string) error {
	role, err := c.projectRole(ctx, subjectID, projectID)
	if err != nil {
		return err
	}
	if !role.IsManagerial() {
		return kferrors.ForbiddenError{
			Subject: subjectID,
			Action:  "manage project " + projectID,
			Reason:  "requires admin role or higher",
		}
	}
	return nil
}

// RequireProjectOwner permits critical transfer actions. Admin is not
// sufficient here even though it passes the general manage gate.
func (c *Checker) RequireProjectOwner(ctx context.Context, subjectID, projectID string) error {
	role, err := c.projectRole(ctx, subjectID, projectID)
	if err != nil {
		return err
	}
	if role != RoleOwner {
		return kferrors.ForbiddenError{
			Subject: subjectID,
			Action:  "transfer ownership of project " + projectID,
			Reason:  "requires owner role",
		}
	}
	return nil
}

// RequireWorkspaceOwner permits workspace-level critical actions (delete,
// move).
func (c *Checker) RequireWorkspaceOwner(ctx context.Context, subjectID, workspaceID string) error {
	role, err := c.resolver.WorkspaceRole(ctx, subjectID, workspaceID)
	if err != nil {
		return err
	}
	if role != RoleOwner {
		return kferrors.ForbiddenError{
			Subject: subjectID,
			Action:  "administer workspace " + workspaceID,
			Reason:  "requires owner role",
		}
	}
	return nil
}
