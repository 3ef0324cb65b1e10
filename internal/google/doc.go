// Package google provides OAuth2 credentials for the Google Calendar API.
//
// A CredentialProvider turns the on-disk token cache into a usable
// oauth2.TokenSource. The cached token is classified into one of three
// states: still valid (used as is), expired with a refresh token (refreshed
// against the token endpoint), or anything else (interactive authorization
// through a loopback redirect, only when a terminal is attached).
//
// Refreshed and newly authorized tokens are written back to the cache so
// the next run can skip the browser step.
package google
