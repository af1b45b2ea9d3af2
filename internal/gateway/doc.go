// Package gateway exposes poster generation over HTTP. Requests are
// validated, normalized and handed to the dispatcher; the response only
// acknowledges that a generation was started.
package gateway
