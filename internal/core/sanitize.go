package core

import "github.com/microcosm-cc/bluemonday"

// strictPolicy strips all markup, leaving escaped text. Policies are safe
// for concurrent use.
var strictPolicy = bluemonday.StrictPolicy()

// Sanitize removes HTML from s. It is stable on its own output, which is
// what makes the room-id equality check in login sound: an id that survives
// sanitization unchanged contains nothing worth stripping.
func Sanitize(s string) string {
	return strictPolicy.Sanitize(s)
}
