// Package concurrency
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Lock-free primitives shared by the buffer memory spaces.
package concurrency
