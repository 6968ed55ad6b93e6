// Package passkey runs Burrow's WebAuthn ceremonies.
//
// Each ceremony is two steps: a begin call that stores a serialized challenge
// on the user row (one in-flight ceremony per user, last writer wins), and a
// finish call that takes the challenge back exactly once and validates the
// authenticator response. Credential sign counters only ever move forward.
package passkey
