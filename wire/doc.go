// Package wire encodes and decodes the tag record format exchanged with
// the guest.
//
// A record is a single MessagePack map keyed by field name. Encoding emits
// only fields carrying a meaningful value, so clearing a field is expressed
// by omitting it. Decoding tolerates unknown keys by skipping them, which
// keeps older hosts compatible with newer guests.
package wire
