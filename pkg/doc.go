// Package pkg contains the sub-packages of the focuskeep service.
//
// The layers, from the outside in:
//
// # Application
//
// [github.com/focuskeep/focuskeep/pkg/focuskeep] — configuration, command
// dispatch, and the HTTP surface. Everything wires together here.
//
// [github.com/focuskeep/focuskeep/pkg/client] — Go client for the HTTP
// API, used by integrations and the end-to-end tests.
//
// # Domain
//
// [github.com/focuskeep/focuskeep/pkg/models] — the entities, their JSON
// blob format, and the normalization rules both backends are compared
// under.
//
// [github.com/focuskeep/focuskeep/pkg/migrate] — the backfill engine and
// parity checker that move data between backends and verify agreement.
//
// # Storage
//
// [github.com/focuskeep/focuskeep/pkg/store] — the backend interface,
// shared error values, and the migration run ledger contract, with the
// key-blob adapter, the PostgreSQL adapter, and the routing layer in
// sub-packages. [github.com/focuskeep/focuskeep/pkg/store/storetest] holds
// the in-memory doubles the test suites run on.
//
// [github.com/focuskeep/focuskeep/pkg/objstore] — attachment content
// storage, addressed by opaque key.
package pkg
