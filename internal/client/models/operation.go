package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/common"
)

// Action is the kind of a queued mutation.
type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

func (a Action) Valid() bool {
	switch a {
	case ActionAdd, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Operation is an intent to apply one mutation to the remote store.
//
// Data holds the record snapshot for add/update and is empty for delete.
// It is kept as raw JSON so a damaged entry stays in the queue and is
// reported during preparation instead of breaking the whole queue on load.
type Operation struct {
	ID         string          `json:"id"`
	Action     Action          `json:"action"`
	RecordID   string          `json:"recordId"`
	Data       json.RawMessage `json:"data,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// Record decodes the snapshot carried by an add/update operation.
func (o Operation) Record() (Catch, error) {
	if !o.Action.Valid() {
		return Catch{}, fmt.Errorf("%w: unknown action %q", common.ErrMalformedOperation, o.Action)
	}
	if o.Action == ActionDelete {
		return Catch{}, fmt.Errorf("%w: delete carries no record", common.ErrMalformedOperation)
	}
	var c Catch
	if err := json.Unmarshal(o.Data, &c); err != nil {
		return Catch{}, fmt.Errorf("%w: %v", common.ErrMalformedOperation, err)
	}
	if c.ID == "" || c.ID != o.RecordID {
		return Catch{}, fmt.Errorf("%w: record id %q does not match %q", common.ErrMalformedOperation, c.ID, o.RecordID)
	}
	if c.CreatedAt.IsZero() {
		return Catch{}, fmt.Errorf("%w: record %s has no createdAt", common.ErrMalformedOperation, c.ID)
	}
	return c, nil
}
