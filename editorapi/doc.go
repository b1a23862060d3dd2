// Package editorapi serves an editor.Manager to a browser rendering layer.
//
// Mutating routes submit their work to the manager's command queue so user
// actions never interleave. Redraw requests, notifications and form openings
// are pushed to every client connected on /api/ws as Event envelopes:
//
//	{"type":"refresh","id":"…","timestamp":1700000000000,"payload":{…graph snapshot…}}
//
// Errors are answered as {"error": message} with a status chosen by error
// class: 404 for missing nodes and edges, 400 for malformed requests, 422 for
// requests the store or the edge validator refused, 502 for transport
// failures and 503 when the command queue cannot take more work.
package editorapi
