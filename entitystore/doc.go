// Package entitystore is the client side of the store that persists
// topology entities: sources, processors, sinks, edges, streams, the
// rule-like entities that carry actions, and the editor's layout metadata.
//
// Three Client implementations are provided:
//
//   - HTTPClient talks to the Streamline catalog REST API
//   - KVStore keeps entities in a NATS JetStream key-value bucket
//   - Memory is an in-process store with fault injection, used by tests
//     and by the offline editor
//
// Entities are kept lossless. Fields this package does not model are held
// in Entity.Extra and written back unchanged, so a fetch-patch-update
// cycle never drops data the store added.
//
// A store rejection (an error body in place of an entity) is returned as
// *errors.RemoteError so that callers can show its message verbatim.
package entitystore
