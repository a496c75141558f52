// Package async runs background goroutines with panic recovery.
//
// SafeGo is for long-lived loops that stop with their context, such as the
// replica health check or the policy watcher. SafeGoTimeout is for bounded
// work started from a request, such as an audit write; its context keeps the
// request's values but not its cancellation. Recover turns a panic into an
// error for callers that report failures instead of logging them.
package async
