// Package authcore is the credential and token lifecycle core of the
// Mintlane marketplace backend: password authentication, single-use
// password-reset and email-verification tokens, signed bearer session
// tokens, and the rate limiters that gate all of these.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after construction through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the collaborator interfaces ([AccountRepository], [EmailSender],
// [AuditSink]), value types, and sentinel errors. Rate limiting lives under
// internal/ and is never exported; hashing and token primitives live in the
// password, token, and jwt subpackages.
//
// HTTP routing, request validation, business entities, storage engine
// internals, and email delivery are external collaborators reached only
// through the interfaces above.
//
// # What this package must NOT do
//
//   - Persist or log a plaintext password or token: storage only ever sees
//     the two derived hash forms.
//   - Reveal through any error which authentication check failed.
//   - Inspect environment variables: deployment differences are named
//     Config fields.
package authcore
