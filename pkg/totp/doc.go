// Package totp implements the TOTP (RFC 6238) secret lifecycle: provisioning
// of new secrets with their otpauth:// URIs, and drift-tolerant verification
// of submitted 6-digit tokens.
//
// QR-code rendering of the provisioning URI is a collaborator concern; this
// package stops at the URI string.
package totp
