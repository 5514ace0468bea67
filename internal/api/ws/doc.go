// Package ws streams terminal sessions to browsers over WebSocket.
//
// A client connects to GET /terminals/:id/stream and first receives a
// "snapshot" message holding the session's display window. Later output
// arrives as "output" messages carrying only the lines written since the
// previous message plus the current in-progress line. When the shell exits
// or the session is closed the stream sends "closed" with the exit code and
// closes the connection.
//
// Clients may send:
//
//	{"type":"input","data":"ls\n"}
//	{"type":"resize","rows":40,"cols":120}
//	{"type":"ping"}
package ws
