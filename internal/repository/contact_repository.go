package repository

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/outreachly/voicecampaign-backend/internal/model"
)

// ContactRepositoryInterface is the contact-directory lookup used by enrollment
// and by the dispatcher's context resolution.
type ContactRepositoryInterface interface {
	GetByID(id int) (*model.Contact, error)
	ListByFilter(propertyID *int, roles []string) ([]model.Contact, error)
}

type PropertyRepositoryInterface interface {
	GetByID(id int) (*model.Property, error)
}

type ContactRepository struct {
	DB *sql.DB
}

func (r *ContactRepository) GetByID(id int) (*model.Contact, error) {
	query := `SELECT id, name, phone, role, property_id FROM contacts WHERE id=$1`
	var c model.Contact
	err := r.DB.QueryRow(query, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Role, &c.PropertyID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *ContactRepository) ListByFilter(propertyID *int, roles []string) ([]model.Contact, error) {
	query := `SELECT id, name, phone, role, property_id FROM contacts WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if propertyID != nil {
		query += fmt.Sprintf(" AND property_id=$%d", argPos)
		args = append(args, *propertyID)
		argPos++
	}
	if len(roles) > 0 {
		query += fmt.Sprintf(" AND role = ANY($%d)", argPos)
		args = append(args, pq.Array(roles))
	}
	query += " ORDER BY id ASC"

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Role, &c.PropertyID); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

type PropertyRepository struct {
	DB *sql.DB
}

func (r *PropertyRepository) GetByID(id int) (*model.Property, error) {
	query := `SELECT id, name, address FROM properties WHERE id=$1`
	var p model.Property
	err := r.DB.QueryRow(query, id).Scan(&p.ID, &p.Name, &p.Address)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
var _ PropertyRepositoryInterface = (*PropertyRepository)(nil)
