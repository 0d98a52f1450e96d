package vote

import "time"

// Vote is an immutable audit record of one voter acting on one complaint.
// The complaint's own voter set stays authoritative for the tally; these rows
// exist for history queries only.
type Vote struct {
	ID          string    `json:"id"`
	ComplaintID string    `json:"complaintId"`
	RegNo       string    `json:"regNo"`
	CreatedAt   time.Time `json:"date"`
}
