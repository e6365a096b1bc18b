package domain

import "time"

// Department represents an organizational unit used for work classification.
type Department struct {
	ID          string
	Code        string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
