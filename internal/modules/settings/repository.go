// Package settings manages runtime governance parameters. Values live in the
// treasury database and take precedence over environment defaults, so the
// multisig threshold or timelock can change without restarting the engine.
package settings

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Well-known setting keys.
const (
	KeyMultisigThreshold           = "multisig_threshold"
	KeyTimelockSeconds             = "timelock_seconds"
	KeyLargeWithdrawalThresholdBps = "large_withdrawal_threshold_bps"
	KeyPaused                      = "paused"
)

// Repository handles settings database operations.
// Settings are stored as strings and converted to appropriate types when
// retrieved.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new settings repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "settings").Logger(),
	}
}

// Get retrieves a setting value by key.
// Returns nil if the setting doesn't exist (not an error).
func (r *Repository) Get(key string) (*string, error) {
	var value string
	err := r.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return &value, nil
}

// Set stores a setting value, inserting or updating as needed.
func (r *Repository) Set(key string, value string, description *string) error {
	now := time.Now().Unix()

	if description != nil {
		_, err := r.db.Exec(`
			INSERT INTO settings (key, value, description, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				description = excluded.description,
				updated_at = excluded.updated_at
		`, key, value, *description, now)
		return err
	}

	_, err := r.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, now)
	return err
}

// GetAll retrieves all settings as a map.
func (r *Repository) GetAll() (map[string]string, error) {
	rows, err := r.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to get all settings: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan setting row")
			continue
		}
		result[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}

	return result, nil
}

// GetInt retrieves a setting value as integer.
// Returns defaultValue if the setting doesn't exist or parsing fails.
func (r *Repository) GetInt(key string, defaultValue int) (int, error) {
	value, err := r.Get(key)
	if err != nil {
		return defaultValue, err
	}
	if value == nil {
		return defaultValue, nil
	}

	intVal, err := strconv.Atoi(*value)
	if err != nil {
		r.log.Warn().
			Err(err).
			Str("key", key).
			Str("value", *value).
			Msg("Failed to parse int setting")
		return defaultValue, nil
	}

	return intVal, nil
}

// SetInt sets a setting value as integer.
func (r *Repository) SetInt(key string, value int) error {
	return r.Set(key, strconv.Itoa(value), nil)
}

// GetInt64 retrieves a setting value as int64.
// Returns defaultValue if the setting doesn't exist or parsing fails.
func (r *Repository) GetInt64(key string, defaultValue int64) (int64, error) {
	value, err := r.Get(key)
	if err != nil {
		return defaultValue, err
	}
	if value == nil {
		return defaultValue, nil
	}

	intVal, err := strconv.ParseInt(*value, 10, 64)
	if err != nil {
		r.log.Warn().
			Err(err).
			Str("key", key).
			Str("value", *value).
			Msg("Failed to parse int64 setting")
		return defaultValue, nil
	}

	return intVal, nil
}

// SetInt64 sets a setting value as int64.
func (r *Repository) SetInt64(key string, value int64) error {
	return r.Set(key, strconv.FormatInt(value, 10), nil)
}

// GetBool retrieves a setting value as boolean.
// Recognizes "true", "1", "yes", "on"; everything else is false.
func (r *Repository) GetBool(key string, defaultValue bool) (bool, error) {
	value, err := r.Get(key)
	if err != nil {
		return defaultValue, err
	}
	if value == nil {
		return defaultValue, nil
	}

	switch *value {
	case "true", "1", "yes", "on":
		return true, nil
	}
	return false, nil
}

// SetBool sets a setting value as boolean.
func (r *Repository) SetBool(key string, value bool) error {
	strVal := "false"
	if value {
		strVal = "true"
	}
	return r.Set(key, strVal, nil)
}

// Delete deletes a setting. Idempotent.
func (r *Repository) Delete(key string) error {
	_, err := r.db.Exec("DELETE FROM settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}
