// Package framing reassembles protocol messages from the raw chunks read off
// a child's stdout.
//
// Chunk boundaries carry no meaning: a pipe read may return half a message,
// several messages, or a message followed by the start of the next. The
// Assembler keeps the unterminated residue between reads and resynchronizes
// at the next newline when a segment cannot be decoded.
package framing
