package models

import (
	"database/sql"
	"time"
)

type DownloadStatus string

const (
	StatusAdded     DownloadStatus = "added"
	StatusCompleted DownloadStatus = "completed"
	StatusCancelled DownloadStatus = "cancelled"
	StatusRetired   DownloadStatus = "retired"
)

type Download struct {
	ID          string         `json:"id" db:"id"`
	Magnet      string         `json:"magnet" db:"magnet"`
	Name        string         `json:"name" db:"name"`
	SavePath    string         `json:"save_path" db:"save_path"`
	Status      DownloadStatus `json:"status" db:"status"`
	AddedAt     time.Time      `json:"added_at" db:"added_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
}

type DownloadRepository struct {
	db *sql.DB
}

func NewDownloadRepository(db *sql.DB) *DownloadRepository {
	return &DownloadRepository{db: db}
}

func (r *DownloadRepository) Create(d *Download) error {
	query := `
        INSERT INTO downloads (id, magnet, name, save_path, status)
        VALUES (?, ?, ?, ?, ?)
    `
	if d.Status == "" {
		d.Status = StatusAdded
	}
	_, err := r.db.Exec(query, d.ID, d.Magnet, d.Name, d.SavePath, d.Status)
	if err != nil {
		return err
	}
	d.AddedAt = time.Now()
	return nil
}

func (r *DownloadRepository) GetByID(id string) (*Download, error) {
	query := `
        SELECT id, magnet, name, save_path, status, added_at, completed_at
        FROM downloads WHERE id = ?
    `
	row := r.db.QueryRow(query, id)

	var d Download
	err := row.Scan(&d.ID, &d.Magnet, &d.Name, &d.SavePath, &d.Status, &d.AddedAt, &d.CompletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *DownloadRepository) GetRecent(limit int) ([]Download, error) {
	query := `
        SELECT id, magnet, name, save_path, status, added_at, completed_at
        FROM downloads ORDER BY added_at DESC LIMIT ?
    `
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var downloads []Download
	for rows.Next() {
		var d Download
		err := rows.Scan(&d.ID, &d.Magnet, &d.Name, &d.SavePath, &d.Status, &d.AddedAt, &d.CompletedAt)
		if err != nil {
			return nil, err
		}
		downloads = append(downloads, d)
	}
	return downloads, rows.Err()
}

// SetName records the torrent name once metadata resolves it.
func (r *DownloadRepository) SetName(id, name string) error {
	_, err := r.db.Exec("UPDATE downloads SET name = ? WHERE id = ?", name, id)
	return err
}

// SetStatus updates the lifecycle status, stamping completed_at for terminal states.
func (r *DownloadRepository) SetStatus(id string, status DownloadStatus) error {
	if status == StatusCompleted || status == StatusCancelled || status == StatusRetired {
		_, err := r.db.Exec(
			"UPDATE downloads SET status = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ?",
			status, id)
		return err
	}
	_, err := r.db.Exec("UPDATE downloads SET status = ? WHERE id = ?", status, id)
	return err
}

// DeleteOlderThan removes history rows added before the cutoff and returns the
// number of rows deleted.
func (r *DownloadRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM downloads WHERE added_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
