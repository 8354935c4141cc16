// Package tasks provides a multi-user task tracking backend: credential
// hashing, JWT session issuance, ownership-scoped todo repositories, HTTP
// controllers, and productivity insights.
//
// Session lifecycle:
//   - Login verifies credentials through an IdentityProvider and issues an
//     access/refresh token pair. Refresh decodes the refresh token, resolves
//     the subject to a live user, and issues a fresh pair. There is no
//     revocation store; a token is valid until its natural expiry.
//   - TokenService signs HS256 JWTs with a configurable TTL and validates
//     them, distinguishing expired tokens from malformed ones.
//
// Ownership:
//   - Todo mutations are scoped to the owning user. A mutation against a todo
//     owned by someone else reports the same not-found outcome as a missing
//     record, so the API never confirms another user's todo exists.
//
// Insights:
//   - InsightService aggregates completion statistics and asks an Advisor
//     (an external text generation service) for suggestions. Advisor failures
//     degrade to canned suggestions; the stats are always served.
package tasks
