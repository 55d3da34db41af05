package tests

import (
	"encoding/json"
	"quiltplatform/quilt/schema"
	"testing"
)

func shippingFields() []fieldSpec {
	return []fieldSpec{
		{FieldName: "vessel", FieldLabel: "Vessel", FieldType: schema.FieldText, IsRequired: true, FieldOrder: 1},
		{FieldName: "containers", FieldLabel: "Containers", FieldType: schema.FieldNumber, FieldOrder: 2},
		{FieldName: "departure", FieldLabel: "Departure", FieldType: schema.FieldDate, FieldOrder: 3},
		{FieldName: "priority", FieldLabel: "Priority", FieldType: schema.FieldSelect, FieldOptions: []string{"Low", "High"}, FieldOrder: 4},
		{FieldName: "fragile", FieldLabel: "Fragile", FieldType: schema.FieldCheckbox, FieldOrder: 5},
	}
}

func TestBookingSubmission(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	staff, err := env.newUser("staffer")
	if err != nil {
		t.Fatal(err)
	}

	templateId, err := env.createTemplate(&admin, "Grimaldi Shipping", schema.GrimaldiShipping, shippingFields())
	if err != nil {
		t.Fatal(err)
	}

	// Required field missing.
	_, err = staff.submitBooking(templateId, map[string]interface{}{"containers": "3"})
	if err == nil {
		t.Fatal("submission without required field should fail")
	}

	// Key outside the template's schema.
	_, err = staff.submitBooking(templateId, map[string]interface{}{"vessel": "Grande Roma", "smuggled": "x"})
	if err == nil {
		t.Fatal("undeclared field should be rejected")
	}

	// Bad typed values.
	_, err = staff.submitBooking(templateId, map[string]interface{}{"vessel": "Grande Roma", "containers": "three"})
	if err == nil {
		t.Fatal("non numeric value should be rejected")
	}
	_, err = staff.submitBooking(templateId, map[string]interface{}{"vessel": "Grande Roma", "priority": "Urgent"})
	if err == nil {
		t.Fatal("value outside select options should be rejected")
	}
	_, err = staff.submitBooking(templateId, map[string]interface{}{"vessel": "Grande Roma", "fragile": "yes"})
	if err == nil {
		t.Fatal("non boolean checkbox value should be rejected")
	}

	bookingId, err := staff.submitBooking(templateId, map[string]interface{}{
		"vessel":          "Grande Roma",
		"containers":      "3",
		"departure":       "2026-09-15",
		"priority":        "High",
		"port_of_loading": "Lagos",
	})
	if err != nil {
		t.Fatal(err)
	}

	booking, err := staff.getBooking(bookingId)
	if err != nil {
		t.Fatal(err)
	}
	if booking.Status != schema.BookingSubmitted {
		t.Fatalf("form submission must produce status Submitted, got %v", booking.Status)
	}
	if booking.UserId != staff.userId || booking.TemplateName != "Grimaldi Shipping" {
		t.Fatalf("unexpected booking row %v", booking)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(booking.BookingData, &data); err != nil {
		t.Fatal(err)
	}
	if data["vessel"] != "Grande Roma" || data["containers"] != "3" || data["priority"] != "High" {
		t.Fatalf("unexpected booking data %v", data)
	}
	// Unset checkbox seeds to false, not empty string.
	if data["fragile"] != false {
		t.Fatalf("checkbox should default to false, got %v", data["fragile"])
	}
	// Standard shipping fields are always present.
	if data["port_of_loading"] != "Lagos" || data["port_of_discharge"] != "" {
		t.Fatalf("unexpected standard fields in %v", data)
	}
}

func TestBookingDrafts(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	staff, err := env.newUser("staffer")
	if err != nil {
		t.Fatal(err)
	}

	templateId, err := env.createTemplate(&admin, "General Shipping", schema.GeneralShipping, shippingFields())
	if err != nil {
		t.Fatal(err)
	}

	// Drafts skip the required field gate and default to Draft status.
	bookingId, err := staff.createBooking(templateId, map[string]interface{}{"containers": "2"}, "")
	if err != nil {
		t.Fatal(err)
	}

	booking, err := staff.getBooking(bookingId)
	if err != nil {
		t.Fatal(err)
	}
	if booking.Status != schema.BookingDraft {
		t.Fatalf("expected Draft status, got %v", booking.Status)
	}

	if _, err := staff.createBooking(templateId, nil, "NotAStatus"); err == nil {
		t.Fatal("invalid status should be rejected")
	}

	// Deactivated templates accept no new bookings.
	if err := admin.deactivateTemplate(templateId); err != nil {
		t.Fatal(err)
	}
	if _, err := staff.createBooking(templateId, nil, ""); err == nil {
		t.Fatal("booking against deactivated template should fail")
	}
}

func TestBookingVisibilityAndPermissions(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	alice, err := env.newUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := env.newUser("bob")
	if err != nil {
		t.Fatal(err)
	}

	templateId, err := env.createTemplate(&admin, "Orient Shipping", schema.OrientShipping, shippingFields())
	if err != nil {
		t.Fatal(err)
	}

	aliceBooking, err := alice.submitBooking(templateId, map[string]interface{}{"vessel": "MV Aurora"})
	if err != nil {
		t.Fatal(err)
	}
	bobBooking, err := bob.submitBooking(templateId, map[string]interface{}{"vessel": "MV Baltic"})
	if err != nil {
		t.Fatal(err)
	}

	// Staff see only their own bookings, admins see everything.
	aliceList, err := alice.listBookings()
	if err != nil {
		t.Fatal(err)
	}
	if len(aliceList) != 1 || aliceList[0].Id != aliceBooking {
		t.Fatalf("unexpected booking list for alice: %v", aliceList)
	}

	adminList, err := admin.listBookings()
	if err != nil {
		t.Fatal(err)
	}
	if len(adminList) != 2 {
		t.Fatalf("expected 2 bookings for admin, got %d", len(adminList))
	}
	// Newest first.
	if adminList[0].Id != bobBooking || adminList[1].Id != aliceBooking {
		t.Fatalf("bookings out of order: %v", adminList)
	}

	if _, err := alice.getBooking(bobBooking); err != ErrUnauthorized {
		t.Fatal("staff must not read another user's booking")
	}

	// Staff can edit their own bookings, not others'.
	if err := alice.updateBookingStatus(aliceBooking, schema.BookingInProgress); err != nil {
		t.Fatal(err)
	}
	if err := alice.updateBookingStatus(bobBooking, schema.BookingCancelled); err != ErrUnauthorized {
		t.Fatal("staff must not edit another user's booking")
	}
	if err := admin.updateBookingStatus(bobBooking, schema.BookingCompleted); err != nil {
		t.Fatal(err)
	}

	booking, err := bob.getBooking(bobBooking)
	if err != nil {
		t.Fatal(err)
	}
	if booking.Status != schema.BookingCompleted {
		t.Fatalf("expected Completed status, got %v", booking.Status)
	}

	// Deletion is admin only.
	if err := alice.deleteBooking(aliceBooking); err != ErrUnauthorized {
		t.Fatal("staff must not delete bookings")
	}
	if err := admin.deleteBooking(aliceBooking); err != nil {
		t.Fatal(err)
	}

	adminList, err = admin.listBookings()
	if err != nil {
		t.Fatal(err)
	}
	if len(adminList) != 1 {
		t.Fatalf("expected 1 booking after delete, got %d", len(adminList))
	}
}

func TestBookingUpdateData(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	staff, err := env.newUser("staffer")
	if err != nil {
		t.Fatal(err)
	}

	templateId, err := env.createTemplate(&admin, "Grimaldi Shipping", schema.GrimaldiShipping, shippingFields())
	if err != nil {
		t.Fatal(err)
	}

	bookingId, err := staff.submitBooking(templateId, map[string]interface{}{
		"vessel": "Grande Roma", "priority": "Low",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := staff.updateBooking(bookingId, map[string]interface{}{"priority": "High", "port_of_discharge": "Tema"}); err != nil {
		t.Fatal(err)
	}
	if err := staff.updateBooking(bookingId, map[string]interface{}{"priority": "Urgent"}); err == nil {
		t.Fatal("updates must be validated against the template schema")
	}

	booking, err := staff.getBooking(bookingId)
	if err != nil {
		t.Fatal(err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(booking.BookingData, &data); err != nil {
		t.Fatal(err)
	}
	if data["priority"] != "High" || data["port_of_discharge"] != "Tema" {
		t.Fatalf("unexpected data after update %v", data)
	}
	// Untouched values carry over.
	if data["vessel"] != "Grande Roma" {
		t.Fatalf("update must not clobber other fields, got %v", data)
	}
}
