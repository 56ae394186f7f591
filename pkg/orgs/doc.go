// Package orgs provides multi-tenant organization management for the Tenancy service.
//
// # Overview
//
// This package owns the organization, membership, and invitation lifecycle:
// which user may act on which organization, how the active organization is
// resolved per request, and how invitations move through their states.
//
// # Roles
//
// Every membership carries exactly one role:
//
//   - admin: full control over the organization, its members, and invitations
//   - user: regular member, read access plus self-service (switch, leave)
//
// Every organization must keep at least one admin membership at all times.
// Role downgrades, removals, and self-leaves that would break this are
// rejected with ErrInvariant.
//
// # Active organization resolution
//
// Each authenticated request operates against exactly one organization,
// resolved in three steps:
//
//  1. the persisted preference, if the user still has a membership there
//  2. the user's most recently created membership
//  3. auto-provisioning: a fresh organization with the user as sole admin
//
// # Invitations
//
// Invitations are token-addressed, time-boxed offers for an email address to
// join an organization. Status is monotonic:
//
//	pending --(accept)--> accepted
//	pending --(cancel | expire)--> expired
//
// There is no transition out of a terminal state.
//
// # Usage Example
//
// Resolve the request's organization context:
//
//	res, err := service.ResolveActiveOrganization(ctx, userID, preferredOrgID)
//	if err != nil {
//		return err
//	}
//	// res.Org and res.Role describe the active organization
//
// Invite a member:
//
//	result, err := service.InviteMember(ctx, orgID, "bob@example.com", orgs.RoleUser, adminID)
//	if result.Invitation != nil {
//		mailer.SendInvitation(ctx, result.Invitation)
//	}
//
// # Related Packages
//
//   - pkg/authz: per-request authorization context and guards
//   - pkg/identity: the identity-provider boundary (sessions, users)
package orgs
