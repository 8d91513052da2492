// Package bridge
// Author: momentics <momentics@gmail.com>
//
// Handle-based call dispatch between a guest compiler and its host.
//
// Neither side dereferences the other's objects. Each side keeps its own
// objects in a HandleTable and exposes operations on them through a
// dispatch Table keyed by stable identifiers. Arguments and results cross
// the boundary as Values: integers, booleans, handles, UTF-8 strings and
// byte arrays. Composite payloads are canonical CBOR inside a byte array.
package bridge
