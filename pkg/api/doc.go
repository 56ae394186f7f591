// Package api exposes the Tenancy REST surface: organization CRUD,
// active-organization switching, member management, the invitation
// lifecycle, and the caller's profile.
//
// Handlers stay thin. They parse the request, consult the authorization
// guard, call into orgs.Service, and translate the service error taxonomy
// to HTTP statuses in exactly one place (writeServiceError). Business
// rules live in pkg/orgs; nothing here reaches into the database.
package api
