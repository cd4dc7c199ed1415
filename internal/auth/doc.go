// Package auth provides HTTP middleware that authenticates operator API
// requests with either a static API key or an HMAC-signed JWT.
//
// In jwt mode a token must carry role "operator" to use methods other than
// GET and HEAD; role "viewer" is read-only.
package auth
