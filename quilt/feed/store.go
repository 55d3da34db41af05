package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Scope restricts which booking rows a viewer may hold: staff see their own
// records, admins see everything.
type Scope struct {
	ViewerId string
	Admin    bool
}

func (s Scope) Visible(userId string) bool {
	return s.Admin || userId == s.ViewerId
}

// BookingRow is the joined shape a booking list view displays. TemplateName
// and TemplateType come from the task template join, which is why inserts
// force a refetch instead of being applied from the event alone.
type BookingRow struct {
	Id             string          `json:"id"`
	UserId         string          `json:"user_id"`
	TaskTemplateId string          `json:"task_template_id"`
	TemplateName   string          `json:"template_name"`
	TemplateType   string          `json:"template_type"`
	BookingData    json.RawMessage `json:"booking_data"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// BookingList is a local reduction of the booking table for one viewer: a
// snapshot plus a stream of typed events applied in arrival order. The last
// write observed wins; there is no client-side conflict resolution.
type BookingList struct {
	mu      sync.Mutex
	scope   Scope
	refetch func() ([]BookingRow, error)
	rows    []BookingRow
}

// NewBookingList loads the initial snapshot through refetch. The same
// refetch is reused whenever an event cannot be applied locally.
func NewBookingList(scope Scope, refetch func() ([]BookingRow, error)) (*BookingList, error) {
	rows, err := refetch()
	if err != nil {
		return nil, err
	}
	return &BookingList{scope: scope, refetch: refetch, rows: rows}, nil
}

func (l *BookingList) Rows() []BookingRow {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows := make([]BookingRow, len(l.rows))
	copy(rows, l.rows)
	return rows
}

// Apply folds one change event into the held list.
//
//   - Inserted: refetch the full list (the joined template columns are not
//     present in the event), but only when the row is visible to the viewer.
//   - Updated: patch the matching held row in place.
//   - Deleted: drop the row by id.
func (l *BookingList) Apply(e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch e.Type {
	case Inserted:
		if !l.scope.Visible(e.UserId) {
			return nil
		}
		rows, err := l.refetch()
		if err != nil {
			// Keep the previous rows; a failed refetch must not wipe state.
			return err
		}
		l.rows = rows
		return nil

	case Updated:
		if !l.scope.Visible(e.UserId) {
			return nil
		}
		for i := range l.rows {
			if l.rows[i].Id == e.Id {
				patchBookingRow(&l.rows[i], e.Patch)
				break
			}
		}
		return nil

	case Deleted:
		kept := l.rows[:0]
		for _, row := range l.rows {
			if row.Id != e.Id {
				kept = append(kept, row)
			}
		}
		l.rows = kept
		return nil
	}

	return nil
}

func patchBookingRow(row *BookingRow, patch map[string]json.RawMessage) {
	unmarshalInto := func(key string, dest interface{}) {
		raw, ok := patch[key]
		if !ok {
			return
		}
		if err := json.Unmarshal(raw, dest); err != nil {
			slog.Error("invalid patch value in change event", "column", key, "error", err)
		}
	}

	unmarshalInto("status", &row.Status)
	unmarshalInto("task_template_id", &row.TaskTemplateId)
	unmarshalInto("user_id", &row.UserId)
	unmarshalInto("updated_at", &row.UpdatedAt)

	if raw, ok := patch["booking_data"]; ok {
		row.BookingData = raw
	}
}

// Run applies events from the subscription until the context ends, calling
// observe after each applied event. Events already buffered on the
// subscription are drained first, so a subscription opened before the initial
// snapshot load misses nothing. Once the context is done no further event
// touches the list, mirroring teardown-on-unmount.
func (l *BookingList) Run(ctx context.Context, sub *Subscription, observe func(Event)) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if err := l.Apply(e); err != nil {
				slog.Error("error applying change event to booking list", "error", err)
				continue
			}
			if observe != nil {
				observe(e)
			}
		}
	}
}
