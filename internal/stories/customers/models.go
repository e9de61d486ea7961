package customers

import "time"

type Customer struct {
	Phone     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
