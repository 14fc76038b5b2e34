// Package redact turns arbitrary event payloads into JSON trees and scrubs
// configured secrets from them.
//
// Redaction walks the tree and substitutes only inside leaves and keys, so
// binary blobs and non-string values never go through a text round trip.
// A secret that only appears across two leaves (or across a leaf and its JSON
// punctuation) is not detected.
package redact
