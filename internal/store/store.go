package store

import (
	"context"
	"database/sql"
	"embed"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

var ErrEmptyValue = errors.New("value cannot be empty")

type DataStore interface {
	Close() error
	Connect() error
	Init() error
	AppendPunishment(ctx context.Context, record *PunishmentRecord) error
	GetPlayerHistory(ctx context.Context, ids []string) (PlayerHistory, error)
	SaveName(ctx context.Context, player PlayerIdentity) error
}

type SqliteStore struct {
	sync.RWMutex
	db     *sql.DB
	dsn    string
	logger *zap.Logger
}

// New creates a store for the database at dsn. Plain paths get the shared cache options
// appended, full URIs are used as given.
func New(dsn string, logger *zap.Logger) *SqliteStore {
	if !strings.Contains(dsn, "?") {
		dsn += "?cache=shared&mode=rwc"
	}

	return &SqliteStore{dsn: dsn, logger: logger.Named("store")}
}

func (store *SqliteStore) Close() error {
	if store.db == nil {
		return nil
	}

	if errClose := store.db.Close(); errClose != nil {
		return errors.Wrapf(errClose, "Failed to close database")
	}

	return nil
}

func (store *SqliteStore) Connect() error {
	database, errOpen := sql.Open("sqlite", store.dsn)
	if errOpen != nil {
		return errors.Wrap(errOpen, "Failed to open database")
	}

	for _, pragma := range []string{"PRAGMA encoding = 'UTF-8'", "PRAGMA foreign_keys = ON"} {
		if _, errPragma := database.Exec(pragma); errPragma != nil {
			return errors.Wrapf(errPragma, "Failed to enable pragma: %s", pragma)
		}
	}

	store.db = database

	return nil
}

func (store *SqliteStore) Init() error {
	if store.db == nil {
		if errConn := store.Connect(); errConn != nil {
			return errConn
		}
	}

	fsDriver, errIofs := iofs.New(migrations, "migrations")
	if errIofs != nil {
		return errors.Wrap(errIofs, "Failed to create iofs")
	}

	sqlDriver, errDriver := sqlite.WithInstance(store.db, &sqlite.Config{})
	if errDriver != nil {
		return errors.Wrap(errDriver, "Failed to create db driver")
	}

	migrator, errNewMigrator := migrate.NewWithInstance("iofs", fsDriver, "sqlite", sqlDriver)
	if errNewMigrator != nil {
		return errors.Wrap(errNewMigrator, "Failed to create migrator")
	}

	if errMigrate := migrator.Up(); errMigrate != nil && !errors.Is(errMigrate, migrate.ErrNoChange) {
		return errors.Wrap(errMigrate, "Failed to migrate database")
	}

	store.logger.Debug("Database migrations applied", zap.String("dsn", store.dsn))

	// migrator.Close would also close the db connection, wiping :memory: databases.
	if errClose := fsDriver.Close(); errClose != nil {
		return errors.Wrap(errClose, "Failed to close fs driver")
	}

	return nil
}

func (store *SqliteStore) AppendPunishment(ctx context.Context, record *PunishmentRecord) error {
	if record.RecordID == "" || record.PlayerID == "" {
		return ErrEmptyValue
	}

	store.Lock()
	defer store.Unlock()

	transaction, errTx := store.db.BeginTx(ctx, nil)
	if errTx != nil {
		return errors.Wrap(errTx, "Failed to start transaction")
	}

	defer func() {
		_ = transaction.Rollback()
	}()

	query, args, errSQL := sq.
		Insert("punishment").
		Columns("record_id", "player_id", "player_name", "admin_id", "admin_name", "action",
			"duration", "reason", "server", "global", "created_on").
		Values(record.RecordID, record.PlayerID, record.PlayerName, record.AdminID, record.AdminName,
			string(record.Action), record.Duration, record.Reason, record.Server, record.Global,
			record.Date.Unix()).
		ToSql()
	if errSQL != nil {
		return errors.Wrap(errSQL, "Failed to generate query")
	}

	if _, errExec := transaction.ExecContext(ctx, query, args...); errExec != nil {
		return errors.Wrap(errExec, "Failed to save punishment")
	}

	ids := record.PlayerIDs
	if len(ids) == 0 {
		ids = NewPlatformIDs(record.PlayerID)
	}

	for _, platform := range ids.platforms() {
		idQuery, idArgs, errIDSQL := sq.
			Insert("punishment_ids").
			Columns("record_id", "platform", "platform_id").
			Values(record.RecordID, string(platform), ids[platform]).
			ToSql()
		if errIDSQL != nil {
			return errors.Wrap(errIDSQL, "Failed to generate query")
		}

		if _, errExec := transaction.ExecContext(ctx, idQuery, idArgs...); errExec != nil {
			return errors.Wrap(errExec, "Failed to save punishment ids")
		}
	}

	if errCommit := transaction.Commit(); errCommit != nil {
		return errors.Wrap(errCommit, "Failed to commit punishment")
	}

	return nil
}

// GetPlayerHistory returns every punishment that matches any of the ids, oldest first,
// along with the other platform ids those records carried and the names seen for them.
func (store *SqliteStore) GetPlayerHistory(ctx context.Context, ids []string) (PlayerHistory, error) {
	history := PlayerHistory{IDs: PlatformIDs{}}

	var lookup []string

	for _, id := range ids {
		if id != "" {
			lookup = append(lookup, id)
		}
	}

	if len(lookup) == 0 {
		return history, nil
	}

	store.RLock()
	defer store.RUnlock()

	query, args, errSQL := sq.
		Select("p.record_id", "p.player_id", "p.player_name", "p.admin_id", "p.admin_name", "p.action",
			"p.duration", "p.reason", "p.server", "p.global", "p.created_on").
		From("punishment p").
		Where(sq.Expr("p.record_id IN (SELECT record_id FROM punishment_ids WHERE platform_id IN ("+
			sq.Placeholders(len(lookup))+"))", toArgs(lookup)...)).
		OrderBy("p.created_on ASC").
		ToSql()
	if errSQL != nil {
		return history, errors.Wrap(errSQL, "Failed to generate query")
	}

	rows, errQuery := store.db.QueryContext(ctx, query, args...)
	if errQuery != nil {
		return history, errors.Wrap(errQuery, "Failed to query history")
	}

	defer func() {
		_ = rows.Close()
	}()

	index := map[string]int{}

	for rows.Next() {
		var (
			record    PunishmentRecord
			action    string
			createdOn int64
		)

		if errScan := rows.Scan(&record.RecordID, &record.PlayerID, &record.PlayerName, &record.AdminID,
			&record.AdminName, &action, &record.Duration, &record.Reason, &record.Server, &record.Global,
			&createdOn); errScan != nil {
			return history, errors.Wrap(errScan, "Failed to scan punishment")
		}

		record.Action = Action(action)
		record.Date = time.Unix(createdOn, 0)
		record.PlayerIDs = PlatformIDs{}
		index[record.RecordID] = len(history.History)
		history.History = append(history.History, record)
	}

	if errRows := rows.Err(); errRows != nil {
		return history, errors.Wrap(errRows, "Failed to read history")
	}

	_ = rows.Close()

	if errIDs := store.loadRecordIDs(ctx, &history, index); errIDs != nil {
		return history, errIDs
	}

	names, errNames := store.fetchNames(ctx, lookup, history.IDs.Values())
	if errNames != nil {
		return history, errNames
	}

	history.PreviousNames = names

	return history, nil
}

func (store *SqliteStore) loadRecordIDs(ctx context.Context, history *PlayerHistory, index map[string]int) error {
	if len(index) == 0 {
		return nil
	}

	recordIDs := make([]string, 0, len(index))
	for recordID := range index {
		recordIDs = append(recordIDs, recordID)
	}

	query, args, errSQL := sq.
		Select("record_id", "platform", "platform_id").
		From("punishment_ids").
		Where(sq.Eq{"record_id": recordIDs}).
		ToSql()
	if errSQL != nil {
		return errors.Wrap(errSQL, "Failed to generate query")
	}

	rows, errQuery := store.db.QueryContext(ctx, query, args...)
	if errQuery != nil {
		return errors.Wrap(errQuery, "Failed to query punishment ids")
	}

	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var recordID, platform, platformID string
		if errScan := rows.Scan(&recordID, &platform, &platformID); errScan != nil {
			return errors.Wrap(errScan, "Failed to scan punishment id")
		}

		history.History[index[recordID]].PlayerIDs[Platform(platform)] = platformID
		history.IDs[Platform(platform)] = platformID
	}

	return errors.Wrap(rows.Err(), "Failed to read punishment ids")
}

func (store *SqliteStore) fetchNames(ctx context.Context, lookups ...[]string) ([]string, error) {
	var ids []string
	for _, lookup := range lookups {
		ids = append(ids, lookup...)
	}

	query, args, errSQL := sq.
		Select("name", "MAX(created_on) AS last_seen").
		From("player_names").
		Where(sq.Eq{"player_id": ids}).
		GroupBy("name").
		OrderBy("last_seen DESC").
		ToSql()
	if errSQL != nil {
		return nil, errors.Wrap(errSQL, "Failed to generate query")
	}

	rows, errQuery := store.db.QueryContext(ctx, query, args...)
	if errQuery != nil {
		return nil, errors.Wrap(errQuery, "Failed to query names")
	}

	defer func() {
		_ = rows.Close()
	}()

	var names []string

	for rows.Next() {
		var (
			name     string
			lastSeen int64
		)

		if errScan := rows.Scan(&name, &lastSeen); errScan != nil {
			return nil, errors.Wrap(errScan, "Failed to scan name")
		}

		names = append(names, name)
	}

	if errRows := rows.Err(); errRows != nil {
		return nil, errors.Wrap(errRows, "Failed to read names")
	}

	return names, nil
}

// SaveName records a name seen for every platform id of the player. Repeat sightings only
// refresh the timestamp.
func (store *SqliteStore) SaveName(ctx context.Context, player PlayerIdentity) error {
	if player.Name == "" || player.Name == UnknownName {
		return ErrEmptyValue
	}

	ids := player.IDs.Values()
	if len(ids) == 0 && player.ID != "" {
		ids = []string{player.ID}
	}

	store.Lock()
	defer store.Unlock()

	for _, id := range ids {
		query, args, errSQL := sq.
			Insert("player_names").
			Columns("player_id", "name", "created_on").
			Values(id, player.Name, time.Now().Unix()).
			Suffix("ON CONFLICT (player_id, name) DO UPDATE SET created_on = excluded.created_on").
			ToSql()
		if errSQL != nil {
			return errors.Wrap(errSQL, "Failed to generate query")
		}

		if _, errExec := store.db.ExecContext(ctx, query, args...); errExec != nil {
			return errors.Wrap(errExec, "Failed to save name")
		}
	}

	return nil
}

func toArgs(values []string) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = value
	}

	return out
}
