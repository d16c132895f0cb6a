/*
Package derailed provides a client for the Derailed chat platform.

The client is split into two independent halves that share one set of value
types:

  - Gateway: a persistent WebSocket session that receives real-time frames
    from the platform, keeps track of the session state (session id, current
    user, current settings), and forwards named events to a dispatcher.
  - Interactor: a stateless REST layer with one method per API operation
    (users, guilds, roles, tracks, relationships, profiles).

A typical client dials the gateway, identifies, and registers listeners on
the dispatcher:

	gw := derailed.NewGateway(token)
	gw.Dispatcher.AddListener("on_ready", func(args ...any) {
		// ...
	})
	if err := gw.Open(ctx); err != nil {
		// ...
	}
	if err := gw.Identify(); err != nil {
		// ...
	}

See the provided examples for how to use this library.
*/
package derailed
