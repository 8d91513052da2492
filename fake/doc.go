// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the bridge host, the
// guest compiler and the storage post box.
package fake
