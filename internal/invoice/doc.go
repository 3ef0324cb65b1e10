// Package invoice turns calendar events into invoice rows and serializes
// them to the CSV the renderer consumes.
//
// A Period names the billed month and derives everything that depends on
// it: file names, the invoice date passed to the renderer, and the email
// subject. BuildRows maps events to rows one to one, preserving order, and
// fails with a *MalformedEventError instead of producing a partial invoice.
package invoice
