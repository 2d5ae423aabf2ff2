// Package bridge is the device state synchronization core.
//
// Three cooperating pieces:
//
//   - Manager owns the lifecycle of the single broker session: setup,
//     teardown, per-device subscriptions, periodic request tickers,
//     command dispatch with failure classification, and guarded forced
//     reconnection.
//   - Coordinator is the single authoritative in-memory store of
//     per-device state. It merges periodic polling with asynchronous
//     push updates and exposes the consumer contract: state lookup,
//     command pass-through, refresh, and update listeners.
//   - eventQueue marshals push callbacks from the transport's network
//     goroutines onto one dispatch goroutine that owns all DeviceState
//     mutation, so no state is touched from a foreign goroutine.
//
// Pushes flow transport goroutine -> eventQueue -> dispatch goroutine ->
// Coordinator mutation -> listener notification. Commands flow the other
// way: consumer -> Coordinator -> Manager -> transport.
package bridge
