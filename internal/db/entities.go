package db

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/pkg/errors"
)

type (
	// ViolationRecord is the current open escalation cycle for one
	// (group, user) pair. The count carries the escalation history; there is
	// at most one row per pair.
	ViolationRecord struct {
		GroupID           string   `db:"group_id"`
		UserID            string   `db:"user_id"`
		UserName          string   `db:"user_name"`
		ViolationCount    int      `db:"violation_count"`
		ForbiddenWords    WordList `db:"forbidden_words"`
		OriginalText      string   `db:"original_text"`
		BanDurationSecs   int64    `db:"ban_duration"`
		LastViolationDate string   `db:"last_violation_date"`
		CreatedAt         string   `db:"created_at"`
	}

	WordList []string
)

func (w WordList) Value() (driver.Value, error) {
	if w == nil {
		return "[]", nil
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, errors.Wrap(err, "cant marshal word list")
	}
	return string(data), nil
}

func (w *WordList) Scan(v interface{}) error {
	if v == nil {
		return nil
	}
	switch data := v.(type) {
	case string:
		return json.Unmarshal([]byte(data), w)
	case []byte:
		return json.Unmarshal(data, w)
	default:
		return errors.Errorf("cannot scan type %T into WordList", v)
	}
}
