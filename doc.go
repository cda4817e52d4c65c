// Package focuskeep is a per-user productivity service whose data is live
// migrating from a schemaless key-blob store to PostgreSQL.
//
// The service tracks todos with task logs, projects with resources and
// attachments, focus sessions with time credit, pomodoro logs, and user
// settings. Historically all of it lived in a key-blob host as one JSON
// document per (category, user). The relational store is the destination;
// this module contains both backends, the routing policy that decides per
// user which one is authoritative, and the machinery that copies data
// across and proves the two stores agree.
//
// # Architecture
//
// Both backends implement the same interface,
// [github.com/focuskeep/focuskeep/pkg/store.Backend]:
//
//   - [github.com/focuskeep/focuskeep/pkg/store/kvblob] — the legacy
//     key-blob adapter, whole-document read-modify-write, hosted on
//     SurrealDB in production and an in-memory map in tests.
//   - [github.com/focuskeep/focuskeep/pkg/store/relational] — the
//     PostgreSQL adapter on GORM, with real transactions for composite
//     operations and the migration run ledger.
//
// [github.com/focuskeep/focuskeep/pkg/store/routing] sits on top and
// implements the same interface again: a global read-source switch, a
// per-user canary list, and optional dual-writes whose secondary failures
// are logged and swallowed. The HTTP layer only ever talks to the router.
//
// # Migration
//
// [github.com/focuskeep/focuskeep/pkg/migrate] moves users in resumable
// batches, records progress in a run ledger, and compares the two stores
// category by category through shared normalization in
// [github.com/focuskeep/focuskeep/pkg/models]. Operators drive it with the
// backfill and parity subcommands or the token-guarded HTTP endpoints
// under /internal/migrations.
//
// # Rollout sequence
//
// The intended path from all-legacy to all-relational:
//
//  1. Deploy with dual-write enabled; reads stay on the key-blob store.
//  2. Backfill all users in batches, re-invoking until the run completes.
//  3. Parity-check canary users, then widen the canary read list.
//  4. Flip the global read source to relational; keep dual-write on.
//  5. After a quiet parity run across the user base, drop dual-write and
//     retire the key-blob host.
//
// The end-to-end tests in this directory walk exactly that sequence against
// in-process backends.
package focuskeep
