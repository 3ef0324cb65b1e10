// Package pipeline runs one invoice period end to end:
// authenticate, fetch, transform, render, send.
//
// Stages run strictly in order and nothing is retried. A month without
// events ends the run early with Result.NoEvents set and no files written.
// Each stage gets its own span and a duration sample.
package pipeline
