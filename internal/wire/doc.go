// Package wire implements the line-delimited JSON envelope exchanged between
// a parent process and its child over stdin/stdout.
//
// Every message is one JSON object terminated by a single newline:
//
//	{"event":"count","data":"{\"num\":1}","SR":false}
//
// The data field is always a JSON string or null. Structured payloads are
// serialized by the sender and carried as string text; receivers re-parse
// them with Message.Decode or DecodeData.
//
// Requests set SR ("send and receive") and are answered on the reply
// channel, the request event name with ReplySuffix appended.
package wire
