// Package auth provides authentication, lockout and permission primitives for
// privileged actors: platform administrators and landlord staff. Both kinds
// share one Actor model discriminated by ActorKind.
//
// Login and sessions:
//   - Auther.Login verifies credentials with a PasswordHasher, applies the
//     LockoutPolicy (5 failed attempts lock an account for 2 hours) and issues
//     an 8 hour HS256 token through the TokenService.
//   - Auther.Authenticate validates a bearer token and re-reads the actor on
//     every request so deactivation takes effect mid session.
//
// Permissions:
//   - HasPermission grants root everything, super everything except
//     actor_management, and every other role only its explicit PermissionSet.
//     The Catalog holds default grants keyed by (ActorKind, Role).
//
// Provisioning and lifecycle:
//   - Provisioner.CreateActor enforces the role hierarchy and the one root per
//     kind invariant. ActorStateMachine moves actors between pending, active
//     and deactivated.
//
// Activity:
//   - AuditLogger persists a bounded per actor activity trail (100 entries,
//     oldest evicted first). ActivitySink receives the same events best-effort
//     so they can be forwarded to metrics or a queue.
package auth
