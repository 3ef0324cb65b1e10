// Package render invokes the external invoice generator that turns the
// CSV into a PDF.
//
// The generator is an opaque program called as
//
//	<command> <script> <csv> <YYYY-MM-DD> <pdf>
//
// from a configured working directory. Success means exit status zero and
// a PDF present at the requested path.
package render
