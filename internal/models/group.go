package models

import "time"

// Group represents a chat group. Members always include the creator.
type Group struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedBy int       `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	Members   []int     `db:"-" json:"members"`
}
