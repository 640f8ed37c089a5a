package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"wedding-seating/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const guestColumns = `id, event_id, name, phone_number, rsvp_status, side, relationship,
	additional_guest_count, dietary_restrictions, table_id, rsvp_date, invited_date, notes, position`

const tableColumns = `id, event_id, name, capacity, is_locked, position`

type guestRow struct {
	ID                   string       `db:"id"`
	EventID              string       `db:"event_id"`
	Name                 string       `db:"name"`
	PhoneNumber          string       `db:"phone_number"`
	RSVPStatus           string       `db:"rsvp_status"`
	Side                 string       `db:"side"`
	Relationship         string       `db:"relationship"`
	AdditionalGuestCount int          `db:"additional_guest_count"`
	DietaryRestrictions  string       `db:"dietary_restrictions"`
	TableID              string       `db:"table_id"`
	RSVPDate             sql.NullTime `db:"rsvp_date"`
	InvitedDate          time.Time    `db:"invited_date"`
	Notes                string       `db:"notes"`
	Position             int          `db:"position"`
}

type tableRow struct {
	ID       string `db:"id"`
	EventID  string `db:"event_id"`
	Name     string `db:"name"`
	Capacity int    `db:"capacity"`
	IsLocked bool   `db:"is_locked"`
	Position int    `db:"position"`
}

type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// SQLStore persists guests, tables and the assignment link in SQLite or
// PostgreSQL. Both sides of a link change inside one transaction.
type SQLStore struct {
	db     *sqlx.DB
	driver string
	log    zerolog.Logger
}

// NewSQLStore opens a connection for driver ("sqlite3" or "postgres").
func NewSQLStore(driver, dsn string, log zerolog.Logger) (*SQLStore, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	switch driver {
	case DriverSQLite:
		// one writer; keeps transactions from tripping over SQLITE_BUSY
		db.SetMaxOpenConns(1)
	default:
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	return &SQLStore{
		db:     db,
		driver: driver,
		log:    log.With().Str("component", "SQLStore").Logger(),
	}, nil
}

// Migrate applies the embedded schema migrations.
func (s *SQLStore) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	var driver database.Driver
	switch s.driver {
	case DriverPostgres:
		driver, err = migratepostgres.WithInstance(s.db.DB, &migratepostgres.Config{})
	case DriverSQLite:
		driver, err = migratesqlite.WithInstance(s.db.DB, &migratesqlite.Config{})
	default:
		return fmt.Errorf("unsupported database driver %q", s.driver)
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, s.driver, driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	s.log.Info().Str("driver", s.driver).Msg("Database migrations completed")
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) AddGuest(ctx context.Context, guest *models.Guest) error {
	if err := models.Validate(guest); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.findUpsertTarget(ctx, tx, guest)
		if err != nil {
			return err
		}

		if existing != nil {
			merged := mergeGuest(*existing, *guest)
			table, occupied, err := s.seatContext(ctx, tx, merged)
			if err != nil {
				return err
			}
			if err := checkSeatChange(&merged, table, occupied); err != nil {
				return err
			}
			if err := s.updateGuest(ctx, tx, merged); err != nil {
				return err
			}
			*guest = merged
			return nil
		}

		prepareNewGuest(guest)
		var position int
		if err := sqlx.GetContext(ctx, tx, &position,
			s.db.Rebind(`SELECT COALESCE(MAX(position), 0) + 1 FROM guests WHERE event_id = ?`), guest.EventID); err != nil {
			return fmt.Errorf("failed to allocate guest position: %w", err)
		}

		row, err := toGuestRow(*guest, position)
		if err != nil {
			return err
		}
		query := `INSERT INTO guests (` + guestColumns + `) VALUES (:id, :event_id, :name, :phone_number,
			:rsvp_status, :side, :relationship, :additional_guest_count, :dietary_restrictions, :table_id,
			:rsvp_date, :invited_date, :notes, :position)`
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("failed to insert guest: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) GetGuest(ctx context.Context, id string) (*models.Guest, error) {
	return s.getGuest(ctx, s.db, id)
}

func (s *SQLStore) GetGuestByPhone(ctx context.Context, eventID, phoneNumber string) (*models.Guest, error) {
	var row guestRow
	err := sqlx.GetContext(ctx, s.db, &row,
		s.db.Rebind(`SELECT `+guestColumns+` FROM guests WHERE event_id = ? AND phone_number = ? ORDER BY position LIMIT 1`),
		eventID, phoneNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("guest with phone", phoneNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guest by phone: %w", err)
	}
	return row.toModel()
}

func (s *SQLStore) ListGuests(ctx context.Context, eventID string) ([]models.Guest, error) {
	var rows []guestRow
	if err := sqlx.SelectContext(ctx, s.db, &rows,
		s.db.Rebind(`SELECT `+guestColumns+` FROM guests WHERE event_id = ? ORDER BY position`), eventID); err != nil {
		return nil, fmt.Errorf("failed to list guests: %w", err)
	}

	guests := make([]models.Guest, 0, len(rows))
	for _, row := range rows {
		g, err := row.toModel()
		if err != nil {
			return nil, err
		}
		guests = append(guests, *g)
	}
	return guests, nil
}

func (s *SQLStore) UpdateRSVP(ctx context.Context, guestID string, update RSVPUpdate) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		guest, err := s.getGuest(ctx, tx, guestID)
		if err != nil {
			return err
		}
		if err := applyRSVP(guest, update); err != nil {
			return err
		}
		table, occupied, err := s.seatContext(ctx, tx, *guest)
		if err != nil {
			return err
		}
		if err := checkSeatChange(guest, table, occupied); err != nil {
			return err
		}
		return s.updateGuest(ctx, tx, *guest)
	})
}

func (s *SQLStore) DeleteGuest(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.getGuest(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM table_assignments WHERE guest_id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete guest assignment: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM guests WHERE id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete guest: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) AddTable(ctx context.Context, table *models.Table) error {
	if err := models.Validate(table); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if table.ID != "" {
			existing, err := s.getTableRow(ctx, tx, table.ID)
			if err != nil && !errors.Is(err, models.ErrNotFound) {
				return err
			}
			if existing != nil {
				occupied, err := s.occupiedSeats(ctx, tx, existing.ID, "")
				if err != nil {
					return err
				}
				if table.Capacity < occupied {
					return fmt.Errorf("shrinking table %s to %d seats: %w", existing.Name, table.Capacity, models.ErrCapacityViolation)
				}
				if _, err := tx.ExecContext(ctx,
					s.db.Rebind(`UPDATE seating_tables SET name = ?, capacity = ?, is_locked = ? WHERE id = ?`),
					table.Name, table.Capacity, table.IsLocked, table.ID); err != nil {
					return fmt.Errorf("failed to update table: %w", err)
				}
				updated, err := s.getTable(ctx, tx, table.ID)
				if err != nil {
					return err
				}
				*table = *updated
				return nil
			}
		}

		prepareNewTable(table)
		var position int
		if err := sqlx.GetContext(ctx, tx, &position,
			s.db.Rebind(`SELECT COALESCE(MAX(position), 0) + 1 FROM seating_tables WHERE event_id = ?`), table.EventID); err != nil {
			return fmt.Errorf("failed to allocate table position: %w", err)
		}

		row := tableRow{
			ID:       table.ID,
			EventID:  table.EventID,
			Name:     table.Name,
			Capacity: table.Capacity,
			IsLocked: table.IsLocked,
			Position: position,
		}
		query := `INSERT INTO seating_tables (` + tableColumns + `)
			VALUES (:id, :event_id, :name, :capacity, :is_locked, :position)`
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("failed to insert table: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) GetTable(ctx context.Context, id string) (*models.Table, error) {
	return s.getTable(ctx, s.db, id)
}

func (s *SQLStore) ListTables(ctx context.Context, eventID string) ([]models.Table, error) {
	var rows []tableRow
	if err := sqlx.SelectContext(ctx, s.db, &rows,
		s.db.Rebind(`SELECT `+tableColumns+` FROM seating_tables WHERE event_id = ? ORDER BY position`), eventID); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	var links []struct {
		TableID string `db:"table_id"`
		GuestID string `db:"guest_id"`
	}
	if err := sqlx.SelectContext(ctx, s.db, &links, s.db.Rebind(`
		SELECT ta.table_id, ta.guest_id
		FROM table_assignments ta
		INNER JOIN seating_tables t ON t.id = ta.table_id
		WHERE t.event_id = ?
		ORDER BY ta.table_id, ta.position`), eventID); err != nil {
		return nil, fmt.Errorf("failed to list table assignments: %w", err)
	}

	assigned := make(map[string][]string, len(rows))
	for _, l := range links {
		assigned[l.TableID] = append(assigned[l.TableID], l.GuestID)
	}

	tables := make([]models.Table, 0, len(rows))
	for _, row := range rows {
		t := row.toModel()
		if ids, ok := assigned[t.ID]; ok {
			t.AssignedGuests = ids
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func (s *SQLStore) SetTableLock(ctx context.Context, tableID string, locked bool) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE seating_tables SET is_locked = ? WHERE id = ?`), locked, tableID)
	if err != nil {
		return fmt.Errorf("failed to update table lock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound("table", tableID)
	}
	return nil
}

func (s *SQLStore) DeleteTable(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		table, err := s.getTableRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if table.IsLocked {
			return fmt.Errorf("deleting table %s: %w", table.Name, models.ErrLockedTable)
		}

		statements := []string{
			`UPDATE guests SET table_id = '' WHERE table_id = ?`,
			`DELETE FROM table_assignments WHERE table_id = ?`,
			`DELETE FROM seating_tables WHERE id = ?`,
		}
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, s.db.Rebind(stmt), id); err != nil {
				return fmt.Errorf("failed to delete table: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLStore) CommitAssignment(ctx context.Context, guestID, tableID string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		guest, err := s.getGuest(ctx, tx, guestID)
		if err != nil {
			return err
		}
		target, err := s.getTable(ctx, tx, tableID)
		if err != nil {
			return err
		}
		if guest.TableID == tableID && target.HasGuest(guestID) {
			return nil
		}

		var previous *models.Table
		if guest.TableID != "" && guest.TableID != tableID {
			previous, err = s.getTable(ctx, tx, guest.TableID)
			if err != nil && !errors.Is(err, models.ErrNotFound) {
				return err
			}
		}

		occupied, err := s.occupiedSeats(ctx, tx, tableID, guestID)
		if err != nil {
			return err
		}
		if err := checkAssignment(guest, target, previous, occupied); err != nil {
			return err
		}

		var position int
		if err := sqlx.GetContext(ctx, tx, &position,
			s.db.Rebind(`SELECT COALESCE(MAX(position), 0) + 1 FROM table_assignments WHERE table_id = ?`), tableID); err != nil {
			return fmt.Errorf("failed to allocate seat position: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM table_assignments WHERE guest_id = ?`), guestID); err != nil {
			return fmt.Errorf("failed to release previous seat: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			s.db.Rebind(`INSERT INTO table_assignments (table_id, guest_id, position) VALUES (?, ?, ?)`),
			tableID, guestID, position); err != nil {
			return fmt.Errorf("failed to insert assignment: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`UPDATE guests SET table_id = ? WHERE id = ?`), tableID, guestID); err != nil {
			return fmt.Errorf("failed to update guest table: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) ClearAssignment(ctx context.Context, guestID string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		guest, err := s.getGuest(ctx, tx, guestID)
		if err != nil {
			return err
		}
		if guest.TableID == "" {
			return nil
		}

		table, err := s.getTableRow(ctx, tx, guest.TableID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
		if table != nil && table.IsLocked {
			return fmt.Errorf("removing guest from table %s: %w", table.Name, models.ErrLockedTable)
		}

		if _, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM table_assignments WHERE guest_id = ?`), guestID); err != nil {
			return fmt.Errorf("failed to delete assignment: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`UPDATE guests SET table_id = '' WHERE id = ?`), guestID); err != nil {
			return fmt.Errorf("failed to clear guest table: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) findUpsertTarget(ctx context.Context, q queryer, guest *models.Guest) (*models.Guest, error) {
	if guest.ID != "" {
		existing, err := s.getGuest(ctx, q, guest.ID)
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return existing, err
	}
	if guest.PhoneNumber == "" {
		return nil, nil
	}

	var row guestRow
	err := sqlx.GetContext(ctx, q, &row,
		s.db.Rebind(`SELECT `+guestColumns+` FROM guests WHERE event_id = ? AND phone_number = ? ORDER BY position LIMIT 1`),
		guest.EventID, guest.PhoneNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up guest by phone: %w", err)
	}
	return row.toModel()
}

func (s *SQLStore) getGuest(ctx context.Context, q queryer, id string) (*models.Guest, error) {
	var row guestRow
	err := sqlx.GetContext(ctx, q, &row, s.db.Rebind(`SELECT `+guestColumns+` FROM guests WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("guest", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guest %s: %w", id, err)
	}
	return row.toModel()
}

func (s *SQLStore) updateGuest(ctx context.Context, q queryer, guest models.Guest) error {
	row, err := toGuestRow(guest, 0)
	if err != nil {
		return err
	}
	query, args, err := sqlx.Named(`
		UPDATE guests
		SET name = :name, phone_number = :phone_number, rsvp_status = :rsvp_status, side = :side,
			relationship = :relationship, additional_guest_count = :additional_guest_count,
			dietary_restrictions = :dietary_restrictions, rsvp_date = :rsvp_date, notes = :notes
		WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("failed to bind guest update: %w", err)
	}
	if _, err := q.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to update guest: %w", err)
	}
	return nil
}

func (s *SQLStore) getTableRow(ctx context.Context, q queryer, id string) (*tableRow, error) {
	var row tableRow
	err := sqlx.GetContext(ctx, q, &row, s.db.Rebind(`SELECT `+tableColumns+` FROM seating_tables WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("table", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table %s: %w", id, err)
	}
	return &row, nil
}

func (s *SQLStore) getTable(ctx context.Context, q queryer, id string) (*models.Table, error) {
	row, err := s.getTableRow(ctx, q, id)
	if err != nil {
		return nil, err
	}
	table := row.toModel()

	var ids []string
	if err := sqlx.SelectContext(ctx, q, &ids,
		s.db.Rebind(`SELECT guest_id FROM table_assignments WHERE table_id = ? ORDER BY position`), id); err != nil {
		return nil, fmt.Errorf("failed to get table assignments: %w", err)
	}
	if ids != nil {
		table.AssignedGuests = ids
	}
	return &table, nil
}

// seatContext returns the table the guest sits at and the seats taken there
// by everyone else.
func (s *SQLStore) seatContext(ctx context.Context, q queryer, guest models.Guest) (*models.Table, int, error) {
	if guest.TableID == "" {
		return nil, 0, nil
	}
	row, err := s.getTableRow(ctx, q, guest.TableID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	occupied, err := s.occupiedSeats(ctx, q, guest.TableID, guest.ID)
	if err != nil {
		return nil, 0, err
	}
	table := row.toModel()
	return &table, occupied, nil
}

func (s *SQLStore) occupiedSeats(ctx context.Context, q queryer, tableID, excludeGuestID string) (int, error) {
	var occupied int
	err := sqlx.GetContext(ctx, q, &occupied, s.db.Rebind(`
		SELECT COALESCE(SUM(1 + g.additional_guest_count), 0)
		FROM table_assignments ta
		INNER JOIN guests g ON g.id = ta.guest_id
		WHERE ta.table_id = ? AND ta.guest_id <> ?`), tableID, excludeGuestID)
	if err != nil {
		return 0, fmt.Errorf("failed to count occupied seats: %w", err)
	}
	return occupied, nil
}

func toGuestRow(g models.Guest, position int) (guestRow, error) {
	dietary := g.DietaryRestrictions
	if dietary == nil {
		dietary = []string{}
	}
	encoded, err := json.Marshal(dietary)
	if err != nil {
		return guestRow{}, fmt.Errorf("failed to encode dietary restrictions: %w", err)
	}

	return guestRow{
		ID:                   g.ID,
		EventID:              g.EventID,
		Name:                 g.Name,
		PhoneNumber:          g.PhoneNumber,
		RSVPStatus:           string(g.RSVPStatus),
		Side:                 string(g.Side),
		Relationship:         g.Relationship,
		AdditionalGuestCount: g.AdditionalGuestCount,
		DietaryRestrictions:  string(encoded),
		TableID:              g.TableID,
		RSVPDate:             sql.NullTime{Time: g.RSVPDate, Valid: !g.RSVPDate.IsZero()},
		InvitedDate:          g.InvitedDate,
		Notes:                g.Notes,
		Position:             position,
	}, nil
}

func (r guestRow) toModel() (*models.Guest, error) {
	g := &models.Guest{
		ID:                   r.ID,
		EventID:              r.EventID,
		Name:                 r.Name,
		PhoneNumber:          r.PhoneNumber,
		RSVPStatus:           models.RSVPStatus(r.RSVPStatus),
		Side:                 models.Side(r.Side),
		Relationship:         r.Relationship,
		AdditionalGuestCount: r.AdditionalGuestCount,
		TableID:              r.TableID,
		InvitedDate:          r.InvitedDate,
		Notes:                r.Notes,
	}
	if r.RSVPDate.Valid {
		g.RSVPDate = r.RSVPDate.Time
	}
	if r.DietaryRestrictions != "" {
		if err := json.Unmarshal([]byte(r.DietaryRestrictions), &g.DietaryRestrictions); err != nil {
			return nil, fmt.Errorf("failed to decode dietary restrictions of guest %s: %w", r.ID, err)
		}
	}
	if len(g.DietaryRestrictions) == 0 {
		g.DietaryRestrictions = nil
	}
	return g, nil
}

func (r tableRow) toModel() models.Table {
	return models.Table{
		ID:             r.ID,
		EventID:        r.EventID,
		Name:           r.Name,
		Capacity:       r.Capacity,
		IsLocked:       r.IsLocked,
		AssignedGuests: []string{},
	}
}
