package store

import "time"

// Draft is one collaboratively edited document. Body holds the latest
// snapshot clients reported over the relay; the relay itself never reads it.
type Draft struct {
	ID        string
	Title     string
	Body      []byte
	Version   int64
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}
