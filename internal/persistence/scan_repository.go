package persistence

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/IliaW/url-score-worker/internal/model"
	jsoniter "github.com/json-iterator/go"
)

const createScanResults = `CREATE TABLE IF NOT EXISTS scan_results (
	id VARCHAR(36) NOT NULL PRIMARY KEY,
	url VARCHAR(2048) NOT NULL,
	pscore INT NOT NULL,
	sub_scores TEXT NOT NULL,
	fetch_mechanism VARCHAR(32) NOT NULL,
	load_time_ms BIGINT NOT NULL,
	content_length_bytes BIGINT NOT NULL,
	worker_version VARCHAR(32) NOT NULL,
	scanned_at TIMESTAMP NOT NULL
)`

// ScanRecord is the audit row written for every fresh scan.
type ScanRecord struct {
	ID                 string
	URL                string
	OverallScore       int
	SubScores          model.SubScoreSet
	FetchMechanism     string
	LoadTimeMs         int64
	ContentLengthBytes int64
	ScannedAt          time.Time
}

type ScanStorage interface {
	Save(*ScanRecord)
}

type ScanRepository struct {
	db      *sql.DB
	version string
	log     *slog.Logger
}

func NewScanRepository(db *sql.DB, version string, log *slog.Logger) *ScanRepository {
	return &ScanRepository{db: db, version: version, log: log}
}

// Migrate creates the scan_results table if it does not exist.
func (sr *ScanRepository) Migrate() error {
	_, err := sr.db.Exec(createScanResults)
	return err
}

// Save inserts the record. Failures are logged and never reach the caller.
func (sr *ScanRepository) Save(rec *ScanRecord) {
	subScores, err := jsoniter.MarshalToString(rec.SubScores)
	if err != nil {
		sr.log.Error("failed to encode sub-scores.", slog.String("err", err.Error()))
		return
	}
	_, err = sr.db.Exec("INSERT INTO scan_results (id, url, pscore, sub_scores, fetch_mechanism, load_time_ms, content_length_bytes, worker_version, scanned_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rec.ID,
		rec.URL,
		rec.OverallScore,
		subScores,
		rec.FetchMechanism,
		rec.LoadTimeMs,
		rec.ContentLengthBytes,
		sr.version,
		rec.ScannedAt.UTC())
	if err != nil {
		sr.log.Error("failed to save scan to database.", slog.String("err", err.Error()))
		return
	}
	sr.log.Debug("scan saved to db.", slog.String("id", rec.ID))
}
