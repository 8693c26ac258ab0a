// Package app provides the application composition layer.
//
// # Architecture Role
//
// The app package sits above the domain services and is responsible for
// composing them into a running application. It is NOT a business logic
// layer - business logic belongs in internal/app/services/.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Main application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── watch/          # Watched handles and poster sightings
//	│   └── subscriber/     # Alert subscribers
//	├── storage/            # Storage interfaces and implementations
//	│   ├── interfaces.go   # Store interfaces (WatchStore, SightingStore, ...)
//	│   ├── memory/         # In-memory implementation for testing
//	│   ├── file/           # JSON snapshot persistence
//	│   ├── postgres/       # PostgreSQL implementation for production
//	│   └── redis/          # Redis implementation
//	├── services/           # Business logic services
//	│   ├── watch/          # Watch management and sighting diffing
//	│   ├── subscription/   # Subscriber management
//	│   └── checker/        # Scheduled timeline checks and alerting
//	├── httpapi/            # HTTP API handlers and routing
//	├── stream/             # Websocket alert broadcasting
//	├── system/             # System management (lifecycle, service manager)
//	└── metrics/            # Application metrics
//
// # Responsibilities
//
// The app package is responsible for:
//
//   - Composing the watch, subscription, and checker services with their
//     dependencies (stores, the Nitter client, the Telegram client)
//   - Defining storage interfaces that services depend on
//   - Providing domain models shared across services
//   - Exposing HTTP API endpoints for external access
//   - Managing application-level concerns (metrics, lifecycle, streaming)
//
// # Dependency Direction
//
//	cmd/posterwatch/
//	      │
//	      ▼
//	internal/app/runtime/ (process runtime)
//	      │
//	      ▼
//	internal/app/ (composition)
//	      │
//	      ├──► internal/app/services/ (business logic)
//	      │
//	      ├──► internal/app/storage/ (persistence)
//	      │
//	      ├──► internal/nitter/ (timeline scraping)
//	      │
//	      └──► internal/telegram/ (bot API)
package app
