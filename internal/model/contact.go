// internal/model/contact.go
package model

type Contact struct {
	ID         int    `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	Phone      string `db:"phone" json:"phone"`
	Role       string `db:"role" json:"role"`
	PropertyID *int   `db:"property_id" json:"property_id,omitempty"`
}

type Property struct {
	ID      int    `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	Address string `db:"address" json:"address"`
}
