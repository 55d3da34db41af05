package tests

import (
	"quiltplatform/quilt/schema"
	"testing"
)

func TestAuditTrail(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	staff, err := env.newUser("staffer")
	if err != nil {
		t.Fatal(err)
	}

	// Only admins can read the audit trail.
	if _, err := staff.listAuditLogs(""); err != ErrUnauthorized {
		t.Fatal("expected unauthorized error for staff audit list")
	}

	templateId, err := env.createTemplate(&admin, "Grimaldi Shipping", schema.GrimaldiShipping, shippingFields())
	if err != nil {
		t.Fatal(err)
	}

	bookingId, err := staff.submitBooking(templateId, map[string]interface{}{"vessel": "Grande Roma"})
	if err != nil {
		t.Fatal(err)
	}
	if err := admin.updateBookingStatus(bookingId, schema.BookingInProgress); err != nil {
		t.Fatal(err)
	}
	if err := admin.deleteBooking(bookingId); err != nil {
		t.Fatal(err)
	}

	entries, err := admin.listAuditLogs(bookingId)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 audit entries for booking, got %d", len(entries))
	}

	actions := map[string]int{}
	for _, entry := range entries {
		if entry.TableName != "bookings" || entry.RecordId != bookingId {
			t.Fatalf("unexpected audit entry %v", entry)
		}
		actions[entry.Action]++

		switch entry.Action {
		case schema.AuditInsert:
			if entry.UserId != staff.userId {
				t.Fatal("insert entry must record the submitting user")
			}
			if entry.OldValues != nil || entry.NewValues == nil {
				t.Fatal("insert entry must carry new values only")
			}
		case schema.AuditUpdate:
			if entry.UserId != admin.userId {
				t.Fatal("update entry must record the acting admin")
			}
			if entry.OldValues == nil || entry.NewValues == nil {
				t.Fatal("update entry must carry both value sets")
			}
			statusChanged := false
			for _, field := range entry.ChangedFields {
				if field == "status" {
					statusChanged = true
				}
				if field == "id" || field == "user_id" {
					t.Fatalf("unchanged field %v reported as changed", field)
				}
			}
			if !statusChanged {
				t.Fatal("status change must be reported in changed fields")
			}
		case schema.AuditDelete:
			if entry.OldValues == nil || entry.NewValues != nil {
				t.Fatal("delete entry must carry old values only")
			}
		}
	}

	if actions[schema.AuditInsert] != 1 || actions[schema.AuditUpdate] != 1 || actions[schema.AuditDelete] != 1 {
		t.Fatalf("unexpected action breakdown %v", actions)
	}

	// Unfiltered list includes the user and template mutations as well.
	all, err := admin.listAuditLogs("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) <= 3 {
		t.Fatalf("expected entries beyond the booking's, got %d", len(all))
	}
}
