// Package client is a Go SDK for the Foundry HTTP API.
//
// A Client wraps the REST surface. A Session adds an active organization on
// top of it: SwitchOrganization fetches the organization and the caller's
// permission set in that organization, and Can/CanAny answer from that set
// without another round trip.
//
//	c := client.NewClient("https://foundry.example.com", token)
//	s := client.NewSession(c)
//	if _, err := s.SwitchOrganization(ctx, orgID); err != nil {
//		return err
//	}
//	if s.Can("projects:delete") {
//		// show the delete button
//	}
//
// Permissions are only recomputed on SwitchOrganization or Refresh. The
// server remains authoritative and re-checks every request.
package client
