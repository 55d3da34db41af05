package feed

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func row(id, userId, status string) BookingRow {
	return BookingRow{Id: id, UserId: userId, Status: status, BookingData: json.RawMessage(`{}`)}
}

func staticRefetch(rows ...BookingRow) func() ([]BookingRow, error) {
	return func() ([]BookingRow, error) { return rows, nil }
}

func TestInitialSnapshot(t *testing.T) {
	list, err := NewBookingList(Scope{Admin: true}, staticRefetch(row("b1", "u1", "Draft")))
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Rows()) != 1 {
		t.Fatal("initial refetch must populate the list")
	}

	_, err = NewBookingList(Scope{}, func() ([]BookingRow, error) {
		return nil, errors.New("db down")
	})
	if err == nil {
		t.Fatal("failed initial refetch must be surfaced")
	}
}

func TestInsertRefetches(t *testing.T) {
	fetches := 0
	refetch := func() ([]BookingRow, error) {
		fetches++
		if fetches == 1 {
			return []BookingRow{row("b1", "u1", "Draft")}, nil
		}
		return []BookingRow{row("b1", "u1", "Draft"), row("b2", "u1", "Submitted")}, nil
	}

	list, err := NewBookingList(Scope{ViewerId: "u1"}, refetch)
	if err != nil {
		t.Fatal(err)
	}

	// An insert outside the viewer's scope triggers no refetch.
	if err := list.Apply(Event{Type: Inserted, Table: "bookings", Id: "x", UserId: "u2"}); err != nil {
		t.Fatal(err)
	}
	if fetches != 1 || len(list.Rows()) != 1 {
		t.Fatal("foreign insert must not refetch")
	}

	if err := list.Apply(Event{Type: Inserted, Table: "bookings", Id: "b2", UserId: "u1"}); err != nil {
		t.Fatal(err)
	}
	if fetches != 2 || len(list.Rows()) != 2 {
		t.Fatal("visible insert must refetch the joined list")
	}
}

func TestFailedRefetchKeepsRows(t *testing.T) {
	fetches := 0
	refetch := func() ([]BookingRow, error) {
		fetches++
		if fetches == 1 {
			return []BookingRow{row("b1", "u1", "Draft")}, nil
		}
		return nil, errors.New("db down")
	}

	list, err := NewBookingList(Scope{ViewerId: "u1"}, refetch)
	if err != nil {
		t.Fatal(err)
	}

	err = list.Apply(Event{Type: Inserted, Table: "bookings", Id: "b2", UserId: "u1"})
	if err == nil {
		t.Fatal("failed refetch must be reported")
	}
	if len(list.Rows()) != 1 {
		t.Fatal("failed refetch must not wipe held rows")
	}
}

func TestUpdatePatchesInPlace(t *testing.T) {
	list, err := NewBookingList(Scope{Admin: true}, staticRefetch(
		row("b1", "u1", "Draft"), row("b2", "u2", "Submitted"),
	))
	if err != nil {
		t.Fatal(err)
	}

	err = list.Apply(Event{
		Type: Updated, Table: "bookings", Id: "b2", UserId: "u2",
		Patch: map[string]json.RawMessage{
			"status":       json.RawMessage(`"Completed"`),
			"booking_data": json.RawMessage(`{"vessel":"MV Aurora"}`),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	rows := list.Rows()
	if rows[0].Status != "Draft" {
		t.Fatal("untouched row must not change")
	}
	if rows[1].Status != "Completed" || string(rows[1].BookingData) != `{"vessel":"MV Aurora"}` {
		t.Fatalf("patch not applied: %v", rows[1])
	}
}

func TestDeleteRemovesById(t *testing.T) {
	list, err := NewBookingList(Scope{Admin: true}, staticRefetch(
		row("b1", "u1", "Draft"), row("b2", "u2", "Submitted"),
	))
	if err != nil {
		t.Fatal(err)
	}

	if err := list.Apply(Event{Type: Deleted, Table: "bookings", Id: "b1"}); err != nil {
		t.Fatal(err)
	}

	rows := list.Rows()
	if len(rows) != 1 || rows[0].Id != "b2" {
		t.Fatalf("unexpected rows after delete: %v", rows)
	}

	// Deleting an id that is not held is a no-op.
	if err := list.Apply(Event{Type: Deleted, Table: "bookings", Id: "zzz"}); err != nil {
		t.Fatal(err)
	}
	if len(list.Rows()) != 1 {
		t.Fatal("unknown delete must not change the list")
	}
}

func TestRunAppliesUntilCancel(t *testing.T) {
	hub := NewHub()
	list, err := NewBookingList(Scope{Admin: true}, staticRefetch(row("b1", "u1", "Draft")))
	if err != nil {
		t.Fatal(err)
	}

	sub := hub.Subscribe("bookings")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		list.Run(ctx, sub, nil)
		close(done)
	}()

	hub.Publish(Event{Type: Deleted, Table: "bookings", Id: "b1"})

	deadline := time.Now().Add(time.Second)
	for len(list.Rows()) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("event was not applied")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}

func TestRunDrainsEventsBufferedDuringSnapshotLoad(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("bookings")

	// The insert commits while the initial snapshot is still loading: it
	// must wait in the subscription buffer, not vanish.
	hub.Publish(Event{Type: Inserted, Table: "bookings", Id: "b1", UserId: "u1"})

	fetches := 0
	refetch := func() ([]BookingRow, error) {
		fetches++
		if fetches == 1 {
			return nil, nil
		}
		return []BookingRow{row("b1", "u1", "Draft")}, nil
	}

	list, err := NewBookingList(Scope{ViewerId: "u1"}, refetch)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	observed := make(chan Event, 1)
	go list.Run(ctx, sub, func(e Event) { observed <- e })

	select {
	case e := <-observed:
		if e.Id != "b1" {
			t.Fatalf("unexpected event %v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("buffered insert was never delivered")
	}

	rows := list.Rows()
	if len(rows) != 1 || rows[0].Id != "b1" {
		t.Fatalf("buffered insert was not applied: %v", rows)
	}
}

func TestHubFanout(t *testing.T) {
	hub := NewHub()

	bookings := hub.Subscribe("bookings")
	templates := hub.Subscribe("task_templates")
	defer templates.Close()

	hub.Publish(Event{Type: Inserted, Table: "bookings", Id: "b1"})

	select {
	case e := <-bookings.C:
		if e.Id != "b1" {
			t.Fatalf("unexpected event %v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	select {
	case <-templates.C:
		t.Fatal("subscriber must only see its own table")
	default:
	}

	// Closed subscriptions receive nothing further and close their channel.
	bookings.Close()
	hub.Publish(Event{Type: Deleted, Table: "bookings", Id: "b1"})
	if _, open := <-bookings.C; open {
		t.Fatal("closed subscription channel must be drained and closed")
	}
}
