package core

import (
	"fmt"
	"sync"
)

// Dialog is the affinity-side progress UI owned by an AsyncTask. Every method is
// called on the affinity goroutine only.
type Dialog interface {
	SetTitle(title string)
	SetMessage(message string)
	SetProgress(progress int)
	SetMax(max int)
	SetIndeterminate(indeterminate bool)
	Show()
	Dismiss()
}

// DialogField names one mutable property of a Dialog.
type DialogField int

const (
	FieldTitle DialogField = iota + 1
	FieldMessage
	FieldProgress
	FieldMax
	FieldIndeterminate
	// FieldShow is the show marker; its value is ignored.
	FieldShow
)

func (f DialogField) String() string {
	switch f {
	case FieldTitle:
		return "title"
	case FieldMessage:
		return "message"
	case FieldProgress:
		return "progress"
	case FieldMax:
		return "max"
	case FieldIndeterminate:
		return "indeterminate"
	case FieldShow:
		return "show"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// DialogMutation is one recorded (field, value) change.
type DialogMutation struct {
	Field DialogField
	Value any
}

// Apply performs the mutation on d. Values of the wrong type are ignored.
func (m DialogMutation) Apply(d Dialog) {
	switch m.Field {
	case FieldTitle:
		if v, ok := m.Value.(string); ok {
			d.SetTitle(v)
		}
	case FieldMessage:
		if v, ok := m.Value.(string); ok {
			d.SetMessage(v)
		}
	case FieldProgress:
		if v, ok := m.Value.(int); ok {
			d.SetProgress(v)
		}
	case FieldMax:
		if v, ok := m.Value.(int); ok {
			d.SetMax(v)
		}
	case FieldIndeterminate:
		if v, ok := m.Value.(bool); ok {
			d.SetIndeterminate(v)
		}
	case FieldShow:
		d.Show()
	}
}

// dialogOwner is implemented by AsyncTask so that non-generic messages can reach
// the live dialog on the affinity goroutine.
type dialogOwner interface {
	currentDialog() Dialog
	isCancelled() bool
	post(msg Message) bool
}

// =============================================================================
// DialogTransaction
// =============================================================================

// DialogTransaction batches dialog mutations recorded off the affinity goroutine
// and applies them as one message, in record order. A later record for the same
// field wins simply because it is replayed later.
//
// A transaction may be filled from one goroutine at a time; Commit closes it.
type DialogTransaction struct {
	owner dialogOwner

	mu      sync.Mutex
	records []DialogMutation
	closed  bool
}

func newDialogTransaction(owner dialogOwner) *DialogTransaction {
	return &DialogTransaction{owner: owner}
}

// Record appends a mutation. Records after Commit are ignored.
func (tx *DialogTransaction) Record(field DialogField, value any) *DialogTransaction {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !tx.closed {
		tx.records = append(tx.records, DialogMutation{Field: field, Value: value})
	}
	return tx
}

func (tx *DialogTransaction) SetTitle(title string) *DialogTransaction {
	return tx.Record(FieldTitle, title)
}

func (tx *DialogTransaction) SetMessage(message string) *DialogTransaction {
	return tx.Record(FieldMessage, message)
}

func (tx *DialogTransaction) SetProgress(progress int) *DialogTransaction {
	return tx.Record(FieldProgress, progress)
}

func (tx *DialogTransaction) SetMax(max int) *DialogTransaction {
	return tx.Record(FieldMax, max)
}

func (tx *DialogTransaction) SetIndeterminate(indeterminate bool) *DialogTransaction {
	return tx.Record(FieldIndeterminate, indeterminate)
}

func (tx *DialogTransaction) Show() *DialogTransaction {
	return tx.Record(FieldShow, nil)
}

// Len returns the number of recorded mutations.
func (tx *DialogTransaction) Len() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return len(tx.records)
}

// Commit closes the transaction and posts it to the affinity goroutine.
// Nothing is posted if the owning task has been cancelled.
func (tx *DialogTransaction) Commit() error {
	tx.mu.Lock()
	if tx.closed {
		tx.mu.Unlock()
		return ErrTransactionClosed
	}
	tx.closed = true
	records := tx.records
	tx.records = nil
	tx.mu.Unlock()

	if tx.owner.isCancelled() {
		return nil
	}
	tx.owner.post(&transactionMessage{owner: tx.owner, records: records})
	return nil
}

// =============================================================================
// Dialog messages
// =============================================================================

type dialogFieldMessage struct {
	owner    dialogOwner
	mutation DialogMutation
}

func (m *dialogFieldMessage) Kind() MessageKind { return MessageSetDialogField }

func (m *dialogFieldMessage) Dispatch() {
	if d := m.owner.currentDialog(); d != nil {
		m.mutation.Apply(d)
	}
}

type transactionMessage struct {
	owner   dialogOwner
	records []DialogMutation
}

func (m *transactionMessage) Kind() MessageKind { return MessageApplyTransaction }

func (m *transactionMessage) Dispatch() {
	d := m.owner.currentDialog()
	if d == nil {
		return
	}
	for _, r := range m.records {
		r.Apply(d)
	}
}
