// Package database provides the bridge's SQLite storage.
//
// The database holds two things the vendor cloud does not keep for us:
// the history of device states observed by the refresh coordinator and
// the log of control commands sent through the bridge.
//
// Open applies WAL mode and a busy timeout from configuration and limits
// the pool to a single connection. Schema changes are plain SQL files
// applied in version order by Migrate:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are nullable or carry a default,
// and every .up.sql file has a matching .down.sql.
package database
