// internal/errors/errors.go
package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrInvalidTransition signals an operator/programmer error: the requested
// lifecycle action is not allowed from the campaign's current status.
type ErrInvalidTransition struct {
	CampaignID int
	From       string
	Action     string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("campaign %d: cannot %s from status %q", e.CampaignID, e.Action, e.From)
}

func NewInvalidTransition(id int, from, action string) error {
	return &ErrInvalidTransition{CampaignID: id, From: from, Action: action}
}
