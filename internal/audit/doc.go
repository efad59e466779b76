// Package audit relays account-security events to a sink off the request
// path.
//
//   - [Sink] receives events: [ChannelSink], [JSONWriterSink], [ZapSink], [NoOpSink].
//   - [Dispatcher] is a buffered relay that either drops or blocks when full.
//
// Which events exist is decided by the engine, not here.
package audit
