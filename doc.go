// Package tiendasync synchronizes the records of a local point-of-sale
// database with the TiendaLink cloud API.
//
// The agent discovers which storage engine a store installation uses
// (a SQLite file, SQL Server, MySQL, or PostgreSQL), reads the rows
// that have not been uploaded yet, reshapes them into the API's wire
// format, and marks them as synced once the upload is acknowledged.
//
// # Layout
//
// The packages split along those phases:
//
//   - pkg/store holds the engine connectors behind a single Connector
//     interface, plus the resolver that probes engines in a fixed order.
//   - pkg/transform renames and normalizes local columns into API
//     field names and drops duplicate rows.
//   - pkg/api is the HTTP client for login, uploads, and lookups.
//   - pkg/session caches the API token and re-prompts for credentials
//     when it expires or is rejected.
//   - pkg/sync drives a full run in dependency order and guards
//     against overlapping runs.
//
// # Quick Start
//
// Resolve a local database and push its pending rows:
//
//	conn, err := resolver.New().Resolve(ctx, core.Params{Database: "ventas.sqlite"})
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	cfg := api.DefaultConfig()
//	cfg.BaseURL = "https://api.tiendalink.example"
//	client := api.NewClient(cfg)
//	sess := session.NewManager(client.Login, provider)
//	summary, err := sync.New(conn, transform.New(), client, sess).Run(ctx, nil)
//
// The tiendasync command in cmd/tiendasync wires the same pieces
// behind a CLI with sync, fetch, and probe subcommands.
package tiendasync
