// Package authstate holds a WhatsApp instance's credentials and signal key bag in memory and
// converts them to and from the JSON blob stored in whatsapps.session.
//
// The store behind the blob cannot represent byte slices, so every []byte is written as a
// tagged object {"type":"Buffer","data":"<base64>"}. On the way back in, Normalize turns any
// binary-looking shape (tagged object, numeric array, digit-keyed object) into []byte so the
// in-memory state only ever holds one binary representation.
//
// Key categories app-state-sync-key and app-state-sync-version are opaque to this package:
// their values are carried verbatim in both directions.
package authstate
