package domain

// Movement kinds. The log keeps the kind as plain text so the audit trail
// stays readable without joins.
const (
	MovementInitialLoad      = "InitialLoad"
	MovementRestock          = "Restock"
	MovementManualAdjustment = "ManualAdjustment"
	MovementAutomatic        = "Automatic"
)

// Movement is one append-only stock-change record. The medication name is a
// snapshot taken at write time, not a live reference.
type Movement struct {
	ID             int64  `db:"id" json:"id"`
	CreatedAt      string `db:"created_at" json:"created_at"`
	MedicationName string `db:"medication_name" json:"medication_name"`
	Delta          int64  `db:"delta" json:"delta"`
	Kind           string `db:"kind" json:"kind"`
}
