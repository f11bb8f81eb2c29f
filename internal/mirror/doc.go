// Package mirror keeps the value cache in step with the external store.
//
// Engine subscribes to every configured point at startup, reads each
// current value once, and then applies change notifications as they
// arrive. Every resolved notification updates the cache and is published
// to the hub, in delivery order, with no coalescing. Admission of a new
// subscriber channel is serialised with those updates so a channel always
// sees its init snapshot before any update.
package mirror
