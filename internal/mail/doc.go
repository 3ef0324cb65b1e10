// Package mail delivers the rendered invoice over SMTP.
//
// Messages are plain text with a single PDF attachment. Delivery uses
// STARTTLS on the submission port with PLAIN authentication and is never
// retried.
package mail
