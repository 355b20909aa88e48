// Package services contains the business logic of the sync server:
// account registration and login (UserService) and atomic application of
// client mutation batches (SyncService). Services own transaction
// boundaries; repositories only see a dbx.DBTX.
package services
