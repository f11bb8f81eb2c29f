// Package session gates privileged (installer) writes behind a single
// short-lived token.
//
// At most one session is active at a time across the whole process: a
// successful Login replaces whatever token was issued before. Expiry is
// checked lazily in IsAuthorized; there is no background timer.
//
// The expected secret is either a plaintext value or an argon2id PHC hash
// produced by HashSecret. With neither configured the gate is disabled
// and every login fails.
package session
