// Package proxy implements host capabilities for the guest compiler by
// forwarding every method through a guest-to-host dispatch table with the
// proxy's own handle as the first argument.
package proxy
