// Package integration drives the whole launcher against a fake control plane and a fake
// cluster: identity handshake, backlog resumption, queue intake and the sweepers.
package integration
