// Package middleware provides the HTTP middleware stack for the Tenancy
// API: session authentication with active-organization resolution, the
// signed preference cookie, and Redis-backed rate limiting for the public
// invitation endpoints.
package middleware
