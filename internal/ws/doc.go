// Package ws streams the twin to browser dashboards over WebSocket.
//
// Hub broadcasts a "view" message carrying the current twin.View to every
// connected client each interval, and sends one immediately on connect.
// Broadcast pushes ad-hoc events, such as finished simulations, between
// ticks.
//
// Message format sent to clients:
//
//	{
//	  "event": "view",
//	  "data":  { /* same schema as GET /api/v1/view */ }
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy. The endpoint is mounted at /ws/stream.
package ws
