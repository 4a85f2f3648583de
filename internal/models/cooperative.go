package models

import "time"

// Cooperative is a named group users may join through users.cooperative_id.
type Cooperative struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Purpose     string    `db:"purpose" json:"purpose"`
	Products    string    `db:"products" json:"products"`
	Location    string    `db:"location" json:"location"`
	MemberCount int       `db:"member_count" json:"member_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// CreateCooperativeRequest is the payload for registering a cooperative.
type CreateCooperativeRequest struct {
	Name     string `json:"name" validate:"required,max=64"`
	Purpose  string `json:"purpose" validate:"required,max=500"`
	Products string `json:"products" validate:"required,max=500"`
	Location string `json:"location" validate:"required,max=64"`
}
