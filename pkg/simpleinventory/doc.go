// Package simpleinventory provides an inventory item service that keeps each
// item's structured record and its photo asset consistent.
//
// It exposes a single Service interface that orchestrates a RecordStore (item
// fields keyed by id) and an AssetStore (photo blobs addressed by an opaque
// ref). Record stores (JSON file, PostgreSQL, SQLite, Badger, DynamoDB) and
// asset stores (filesystem, S3) are provided under subpackages and are selected
// at startup by the config package.
//
// Ordering Guarantees
//
// The two stores fail independently and are never committed atomically. The
// service always mutates the asset store first, then the record store, and
// releases a superseded asset only after the record mutation succeeded. A
// crash between the two steps can leave an unreferenced asset (an orphan) but
// never a record pointing at a deleted asset. Orphans are logged and can be
// listed with Service.FindOrphans; they are not removed automatically.
package simpleinventory
