// Package orgs manages organizations and memberships.
//
// Creating an organization does not need a service context: the ID is
// generated first and the inserts run under a tenant context for the new
// organization with the creator as OWNER.
//
// Membership changes keep at least one owner per organization. Demoting or
// removing an owner locks the organization's owner rows for the rest of the
// unit of work so that two concurrent changes cannot both pass the check.
//
// MembershipResolver answers "what is this user's role in that organization"
// before a tenant context exists, via the SECURITY DEFINER function
// app_member_role. Writers invalidate the cached role after commit.
package orgs
