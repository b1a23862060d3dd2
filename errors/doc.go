// Package errors implements the three-class error scheme used across the editor:
// Transient (network, unavailable store), Invalid (bad input, refused edge, store
// rejection), and Fatal (broken configuration, corrupted data).
//
// # Wrapping
//
// Every wrapper follows the pattern "component.method: action failed: %w":
//
//	errors.WrapTransient(err, "HTTPClient", "GetNode", "send request")
//	errors.WrapInvalid(err, "Manager", "CreateEdge", "validate edge")
//	errors.WrapFatal(err, "KVStore", "Get", "unmarshal entity")
//
// WrapClass keeps whatever class err already carries.
//
// # Remote rejections
//
// The entity store answers a refused request with a payload carrying a
// responseMessage instead of an entity. Clients turn that payload into a
// *RemoteError, which classifies as Invalid and whose Message is shown to the
// user as is (see UserMessage). A rejection is never retried: the editor
// reports it and carries on with the rest of the batch.
//
//	if re, ok := errors.IsRemote(err); ok {
//	    logger.Warn("store refused request", "code", re.Code, "message", re.Message)
//	}
//
// # Standard library helpers
//
// Is, As, New and Join forward to the standard library so packages importing
// this one under the name errors do not also need the standard package.
package errors
