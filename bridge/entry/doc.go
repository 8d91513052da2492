// Package entry implements the host-to-guest direction of the bridge:
// the entry points a host calls to create and drive a guest compiler.
// Guest objects are kept in a guest-side handle table; host objects are
// reached through proxies only.
package entry
