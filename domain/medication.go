package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Schedule holds the daily dose times as "HH:MM" strings (24-hour clock).
// It is persisted as a JSON array inside a TEXT column.
type Schedule []string

func (s Schedule) Value() (driver.Value, error) {
	if s == nil {
		s = Schedule{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *Schedule) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case string:
		return json.Unmarshal([]byte(v), s)
	case []byte:
		return json.Unmarshal(v, s)
	default:
		return fmt.Errorf("unsupported schedule column type %T", src)
	}
}

// Contains reports whether the schedule includes the given time slot.
// Matching is exact string equality, so "9:00" never matches "09:00".
func (s Schedule) Contains(slot string) bool {
	for _, t := range s {
		if t == slot {
			return true
		}
	}
	return false
}

type Medication struct {
	ID               int64    `db:"id" json:"id"`
	Name             string   `db:"name" json:"name"`
	Dose             string   `db:"dose" json:"dose,omitempty"`
	CurrentStock     int64    `db:"current_stock" json:"current_stock"`
	MinStock         int64    `db:"min_stock" json:"min_stock"`
	Schedule         Schedule `db:"schedule" json:"schedule"`
	LowStockNotified bool     `db:"low_stock_notified" json:"low_stock_notified"`
	ExpiryDate       *string  `db:"expiry_date" json:"expiry_date,omitempty"`
	ExpiryNotified   bool     `db:"expiry_notified" json:"expiry_notified"`
	CreatedAt        string   `db:"created_at" json:"created_at"`
	UpdatedAt        string   `db:"updated_at" json:"updated_at"`
}

// DaysRemaining estimates the full days of supply left given the dosing
// schedule. Medications without schedule times report 0.
func (m Medication) DaysRemaining() int64 {
	if len(m.Schedule) == 0 {
		return 0
	}
	return m.CurrentStock / int64(len(m.Schedule))
}
