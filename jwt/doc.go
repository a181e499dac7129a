// Package jwt issues and verifies the signed, self-contained session tokens
// used as bearer credentials.
//
// Tokens are HS256-signed claim sets carrying subject id and role with a
// short default lifetime and an extended "remember me" lifetime. There is no
// server-side session state: possession of a token with a valid signature
// and unexpired lifetime is the whole session.
//
// # What this package must NOT do
//
//   - Distinguish verification failures to callers: every failure is
//     [ErrTokenInvalid], so the scheme leaks no oracle.
//   - Perform I/O or touch storage.
package jwt
