// Package scheduler drives backup attempts.
//
// Loop runs one attempt immediately, then one per Schedule activation until
// its context is canceled. Attempt failures never leave the loop; faults in
// the loop's own bookkeeping are logged and followed by a fixed crash
// backoff.
package scheduler
