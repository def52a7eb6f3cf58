// Package reporting holds the sinks a finalized run is dispatched to: the
// local FileStore used for persistence, and the Connector and RedisPublisher
// used to publish payloads to a remote collector. It also renders run
// summaries for the console.
package reporting
