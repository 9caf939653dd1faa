// Package passthrough copies catalogue entries to the output bucket
// unchanged.
//
// Every added or updated key is written to its transformed path and every
// deleted key is removed from it. It is the simplest reconcile.Handler and
// is mostly useful to mirror a catalogue or to test a deployment end to end.
package passthrough
