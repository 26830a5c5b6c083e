package amqp

import (
	"encoding/json"
	"time"
)

// Event types carried on the queue.
const (
	TypeExpenseMaterialized = "expense.materialized"
	TypeBudgetAlert         = "budget.alert"
)

// Message is the envelope every event travels in. Type selects which
// payload field is populated.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Materialized *ExpenseMaterializedPayload `json:"materialized,omitempty"`
	Alert        *BudgetAlertPayload         `json:"alert,omitempty"`
}

// ExpenseMaterializedPayload announces that a recurring template
// produced a concrete expense.
type ExpenseMaterializedPayload struct {
	OwnerID     int64  `json:"owner_id"`
	RecurringID int64  `json:"recurring_id"`
	ExpenseID   int64  `json:"expense_id"`
	AmountCents int64  `json:"amount_cents"`
	DueDate     string `json:"due_date"`
}

// BudgetAlertPayload announces that a budget crossed its warning
// threshold or limit for the period.
type BudgetAlertPayload struct {
	OwnerID      int64   `json:"owner_id"`
	Period       string  `json:"period"`
	CategoryID   int64   `json:"category_id,omitempty"` // 0 means the overall budget
	CategoryName string  `json:"category_name,omitempty"`
	LimitCents   int64   `json:"limit_cents"`
	SpentCents   int64   `json:"spent_cents"`
	Percentage   float64 `json:"percentage"`
	OverLimit    bool    `json:"over_limit"`
}

// NewExpenseMaterializedMessage builds the event for a materialized
// occurrence.
func NewExpenseMaterializedMessage(p ExpenseMaterializedPayload) *Message {
	return &Message{
		Type:         TypeExpenseMaterialized,
		Timestamp:    time.Now().UTC(),
		Materialized: &p,
	}
}

// NewBudgetAlertMessage builds the event for a budget warning or
// overrun.
func NewBudgetAlertMessage(p BudgetAlertPayload) *Message {
	return &Message{
		Type:      TypeBudgetAlert,
		Timestamp: time.Now().UTC(),
		Alert:     &p,
	}
}

// ToJSON converts the message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MessageFromJSON creates a message from JSON bytes
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
