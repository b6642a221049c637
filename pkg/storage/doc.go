// Package storage defines the subscription record and the RecordStore
// abstraction that every persistence backend implements.
//
// # Overview
//
// A Record is written once per successful intake, keyed by the caller's
// userPhoneID. Writes are upserts: a second intake for the same userPhoneID
// replaces the earlier record wholesale. Nothing in this module reads,
// updates or deletes records after the write.
//
// # Backends
//
// Each backend lives in its own subpackage so that only the selected
// backend's driver is exercised at runtime:
//
//   - dynamostore: DynamoDB PutItem (the default, and the production target)
//   - sqlstore: PostgreSQL via lib/pq, SQLite via go-sqlite3 for local development
//   - redisstore: one Redis hash per record
//   - s3store: one JSON object per record
//
// Backend selection is driven by Config.Type:
//
//	cfg := storage.DefaultConfig()
//	cfg.DynamoDB.Table = "subscriptions"
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
//
// # Stored Shape
//
// Backends that store attributes by name (DynamoDB, Redis, S3 JSON) use the
// camelCase names userPhoneID, customerId, subscriptionId, email, name and
// createdAt. The SQL backends use snake_case columns. createdAt is always
// rendered with TimestampLayout in UTC.
//
// # Observability
//
// Every PutRecord records intake_storage_operations_total and
// intake_storage_operation_duration_seconds with the backend label, and
// opens a client span on the module tracer.
package storage
