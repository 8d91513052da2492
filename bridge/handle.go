// File: bridge/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package bridge

import "strconv"

// Handle identifies an object living on the other side of the bridge.
// It is only meaningful to the dispatch table of the side that issued it.
type Handle int64

// Null is never issued by a HandleTable.
const Null Handle = 0

func (h Handle) IsNull() bool { return h == Null }

func (h Handle) String() string {
	if h == Null {
		return "handle(null)"
	}
	return "handle(" + strconv.FormatInt(int64(h), 10) + ")"
}
