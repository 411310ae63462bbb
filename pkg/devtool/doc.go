// Package devtool implements a client for the DevTools-style JSON debugging
// protocol exposed by the PeerVault desktop application.
//
// A Client owns one persistent WebSocket connection. Outbound requests carry
// monotonically increasing ids; inbound frames are matched back to waiting
// callers by id, while id-less notification frames are collected into a
// bounded console event buffer. When the connection drops unexpectedly the
// client rejects every outstanding call and attempts a bounded number of
// fixed-delay reconnects, re-arming console capture on success.
//
// Two application instances under test are represented by two fully
// independent Client values; nothing is shared between them.
package devtool
