/*
activity.go - Unified folio activity feed

PURPOSE:
  Merges charges, payments and operation records of one folio into a single
  feed with a uniform shape, newest first. Entries sharing a timestamp keep
  their insertion order (Seq ascending), so repeated queries are identical.

ACTIONS:
  charge     posted | transferred-in | voided
  payment    posted | voided
  operation  the operation's own action (created, closed, voided,
             transferred-in, transferred-out)

  A charge moved away from a folio no longer belongs to it, so the source
  folio only shows it through its transferred-out operation.

The assembler never mutates entries and takes no locks.
*/
package folio

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ActivityItem struct {
	Type        EntryKind
	Action      Action
	Timestamp   time.Time
	Description string
	Amount      decimal.Decimal
	// Details is the full source record: *Charge, *Payment or *Operation.
	Details Entry

	seq int64
}

// AssembleActivity builds the feed. It fails on an entry kind it does not
// know rather than silently dropping it.
func AssembleActivity(entries []Entry) ([]ActivityItem, error) {
	items := make([]ActivityItem, 0, len(entries))
	for _, e := range entries {
		item, err := activityItem(e)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].seq < items[j].seq })
	sort.SliceStable(items, func(i, j int) bool { return items[i].Timestamp.After(items[j].Timestamp) })
	return items, nil
}

func activityItem(e Entry) (ActivityItem, error) {
	switch e := e.(type) {
	case *Charge:
		action := ActionPosted
		switch {
		case e.Voided:
			action = ActionVoided
		case e.TransferredFrom != "":
			action = ActionTransferredIn
		}
		return ActivityItem{
			Type:        KindCharge,
			Action:      action,
			Timestamp:   e.CreatedAt,
			Description: e.Description,
			Amount:      e.Total,
			Details:     e,
			seq:         e.Seq,
		}, nil
	case *Payment:
		action := ActionPosted
		if e.Voided {
			action = ActionVoided
		}
		return ActivityItem{
			Type:        KindPayment,
			Action:      action,
			Timestamp:   e.CreatedAt,
			Description: describePayment(e),
			Amount:      e.Amount,
			Details:     e,
			seq:         e.Seq,
		}, nil
	case *Operation:
		return ActivityItem{
			Type:        KindOperation,
			Action:      e.Action,
			Timestamp:   e.CreatedAt,
			Description: describeOperation(e),
			Amount:      e.Details.Amount,
			Details:     e,
			seq:         e.Seq,
		}, nil
	}
	return ActivityItem{}, fmt.Errorf("activity: unsupported entry %T", e)
}

func describePayment(p *Payment) string {
	s := fmt.Sprintf("%s payment (%s)", title(string(p.PaymentType)), strings.ReplaceAll(string(p.Method), "_", " "))
	if p.Reference != "" {
		s += " ref " + p.Reference
	}
	return s
}

func describeOperation(op *Operation) string {
	var s string
	switch op.Action {
	case ActionCreated:
		s = "Folio opened"
	case ActionClosed:
		s = "Folio closed"
	case ActionVoided:
		s = fmt.Sprintf("%s voided", title(string(op.Subject)))
	case ActionTransferredOut:
		s = fmt.Sprintf("%d charge(s) transferred to folio %s", len(op.Details.EntryIDs), op.Details.CounterFolioID)
	case ActionTransferredIn:
		s = fmt.Sprintf("%d charge(s) transferred from folio %s", len(op.Details.EntryIDs), op.Details.CounterFolioID)
	default:
		s = fmt.Sprintf("%s %s", op.Subject, op.Action)
	}
	if op.Reason != "" {
		s += ": " + op.Reason
	}
	return s
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
