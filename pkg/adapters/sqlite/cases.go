package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/intake/pkg/adapters/memory"
	"github.com/aretw0/intake/pkg/domain"
)

// CaseStore implements ports.CaseStore on the cases table.
type CaseStore struct {
	d *DB
}

// Cases returns the case store backed by d.
func (d *DB) Cases() *CaseStore {
	return &CaseStore{d: d}
}

// Seed inserts the sample cases that are not stored yet.
func (s *CaseStore) Seed(ctx context.Context) error {
	for _, c := range memory.SampleCases() {
		if err := s.insert(ctx, s.d.db, c, true); err != nil {
			return fmt.Errorf("seeding case %s: %w", c.ID, err)
		}
	}
	return nil
}

// CreateRecord stores a new case with a generated ID of the form AC-YYYYMMDD-NNNN.
// A surrender appointment must fall on a free slot.
func (s *CaseStore) CreateRecord(ctx context.Context, rec domain.CaseRecord) (*domain.CaseRecord, error) {
	tx, err := s.d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if rec.Appointment != nil {
		booked, err := s.booked(ctx, tx, *rec.Appointment)
		if err != nil {
			return nil, err
		}
		if booked {
			return nil, fmt.Errorf("appointment %s: %w", rec.Appointment.Format(time.RFC3339), domain.ErrSlotUnavailable)
		}
	}

	now := s.d.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = domain.CaseSubmitted
	}
	if rec.Type == "" {
		rec.Type = domain.CaseGeneral
	}

	var seq int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM cases`).Scan(&seq); err != nil {
		return nil, fmt.Errorf("counting cases: %w", err)
	}
	for {
		seq++
		rec.ID = fmt.Sprintf("AC-%s-%04d", rec.CreatedAt.Format("20060102"), seq%10000)
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM cases WHERE id = ?`, rec.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("checking case id: %w", err)
		}
	}

	if err := s.insert(ctx, tx, rec, false); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing case: %w", err)
	}
	rec.Details = domain.CopyMap(rec.Details)
	return &rec, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *CaseStore) insert(ctx context.Context, db execer, rec domain.CaseRecord, ignoreExisting bool) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("marshaling case details: %w", err)
	}
	var appointment sql.NullString
	if rec.Appointment != nil {
		appointment = sql.NullString{String: formatTime(*rec.Appointment), Valid: true}
	}

	verb := "INSERT"
	if ignoreExisting {
		verb = "INSERT OR IGNORE"
	}
	_, err = db.ExecContext(ctx, verb+` INTO cases (
			id, case_type, animal_type, location, reporter_name, reporter_contact,
			description, status, appointment, details_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Type), rec.AnimalType, rec.Location, rec.ReporterName, rec.ReporterContact,
		rec.Description, string(rec.Status), appointment, string(details),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting case: %w", err)
	}
	return nil
}

const caseColumns = `id, case_type, animal_type, location, reporter_name, reporter_contact,
	description, status, appointment, details_json, created_at, updated_at`

// Get returns the case with the given ID.
func (s *CaseStore) Get(ctx context.Context, id string) (*domain.CaseRecord, error) {
	row := s.d.db.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = ?`, id)
	rec, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FindByContact returns the cases reported from contact, newest first.
func (s *CaseStore) FindByContact(ctx context.Context, contact string) ([]domain.CaseRecord, error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return nil, nil
	}
	return s.query(ctx, `SELECT `+caseColumns+` FROM cases
		WHERE reporter_contact = ? COLLATE NOCASE
		ORDER BY created_at DESC, id DESC`, contact)
}

// FindMatches returns the open reports of the opposite kind about the same
// animal type that share a location word with rec.
func (s *CaseStore) FindMatches(ctx context.Context, rec domain.CaseRecord) ([]domain.CaseRecord, error) {
	var want domain.CaseType
	switch rec.Type {
	case domain.CaseFound:
		want = domain.CaseLost
	case domain.CaseLost:
		want = domain.CaseFound
	default:
		return nil, nil
	}

	candidates, err := s.query(ctx, `SELECT `+caseColumns+` FROM cases
		WHERE case_type = ? AND status IN (?, ?) AND id != ?
		ORDER BY created_at DESC, id DESC`,
		string(want), string(domain.CaseSubmitted), string(domain.CaseInProgress), rec.ID)
	if err != nil {
		return nil, err
	}

	var out []domain.CaseRecord
	for _, c := range candidates {
		if memory.Matches(rec, c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// CheckAvailability lists the hourly appointment slots of the given days,
// skipping Sundays. A slot is unavailable once an open case holds it.
func (s *CaseStore) CheckAvailability(ctx context.Context, from time.Time, days int) ([]domain.Slot, error) {
	if days <= 0 {
		return nil, nil
	}
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	end := start.AddDate(0, 0, days)

	rows, err := s.d.db.QueryContext(ctx, `SELECT appointment FROM cases
		WHERE appointment IS NOT NULL AND appointment >= ? AND appointment < ? AND status != ?`,
		formatTime(from), formatTime(end), string(domain.CaseCancelled))
	if err != nil {
		return nil, fmt.Errorf("querying appointments: %w", err)
	}
	defer rows.Close()

	taken := make(map[string]bool)
	for rows.Next() {
		var at string
		if err := rows.Scan(&at); err != nil {
			return nil, fmt.Errorf("scanning appointment: %w", err)
		}
		taken[at] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var slots []domain.Slot
	for d := 0; d < days; d++ {
		day := start.AddDate(0, 0, d)
		if day.Weekday() == time.Sunday {
			continue
		}
		for h := memory.FirstSlotHour; h <= memory.LastSlotHour; h++ {
			at := day.Add(time.Duration(h) * time.Hour)
			if at.Before(from) {
				continue
			}
			slots = append(slots, domain.Slot{Start: at, Available: !taken[formatTime(at)]})
		}
	}
	return slots, nil
}

// Stats returns case counts by type and status.
func (s *CaseStore) Stats(ctx context.Context) (memory.CaseStats, error) {
	stats := memory.CaseStats{
		ByType:   make(map[domain.CaseType]int),
		ByStatus: make(map[domain.CaseStatus]int),
	}
	rows, err := s.d.db.QueryContext(ctx, `SELECT case_type, status, COUNT(*) FROM cases GROUP BY case_type, status`)
	if err != nil {
		return stats, fmt.Errorf("querying case stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var typ, status string
		var n int
		if err := rows.Scan(&typ, &status, &n); err != nil {
			return stats, fmt.Errorf("scanning case stats: %w", err)
		}
		stats.Total += n
		stats.ByType[domain.CaseType(typ)] += n
		stats.ByStatus[domain.CaseStatus(status)] += n
	}
	return stats, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *CaseStore) booked(ctx context.Context, db queryer, at time.Time) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM cases WHERE appointment = ? AND status != ? LIMIT 1`,
		formatTime(at), string(domain.CaseCancelled)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking appointment: %w", err)
	}
	return true, nil
}

func (s *CaseStore) query(ctx context.Context, query string, args ...any) ([]domain.CaseRecord, error) {
	rows, err := s.d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cases: %w", err)
	}
	defer rows.Close()

	var out []domain.CaseRecord
	for rows.Next() {
		rec, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCase(row scanner) (*domain.CaseRecord, error) {
	var (
		rec                  domain.CaseRecord
		typ, status          string
		appointment, details sql.NullString
		created, updated     string
	)
	err := row.Scan(&rec.ID, &typ, &rec.AnimalType, &rec.Location, &rec.ReporterName, &rec.ReporterContact,
		&rec.Description, &status, &appointment, &details, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning case: %w", err)
	}
	rec.Type = domain.CaseType(typ)
	rec.Status = domain.CaseStatus(status)

	if appointment.Valid {
		at, err := parseTime(appointment.String)
		if err != nil {
			return nil, fmt.Errorf("parsing appointment of case %s: %w", rec.ID, err)
		}
		rec.Appointment = &at
	}
	if details.Valid && details.String != "null" {
		if err := json.Unmarshal([]byte(details.String), &rec.Details); err != nil {
			return nil, fmt.Errorf("unmarshaling details of case %s: %w", rec.ID, err)
		}
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parsing created_at of case %s: %w", rec.ID, err)
	}
	if rec.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parsing updated_at of case %s: %w", rec.ID, err)
	}
	return &rec, nil
}
