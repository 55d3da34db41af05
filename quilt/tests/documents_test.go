package tests

import (
	"quiltplatform/quilt/schema"
	"strings"
	"testing"
)

func TestDocumentTemplateFilter(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := admin.createTemplate("Grimaldi Shipping", schema.GrimaldiShipping); err != nil {
		t.Fatal(err)
	}
	labelsId, err := admin.createTemplate("Labels", schema.Labels)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := admin.createTemplate("BLC", schema.Blc); err != nil {
		t.Fatal(err)
	}

	templates, err := admin.listDocumentTemplates()
	if err != nil {
		t.Fatal(err)
	}

	// Only document producing types are offered; shipping templates are not.
	if len(templates) != 2 {
		t.Fatalf("expected 2 document templates, got %d", len(templates))
	}
	for _, template := range templates {
		if template.Type != schema.Labels && template.Type != schema.Blc {
			t.Fatalf("unexpected document template %v", template)
		}
	}

	if err := admin.deactivateTemplate(labelsId); err != nil {
		t.Fatal(err)
	}
	templates, err = admin.listDocumentTemplates()
	if err != nil {
		t.Fatal(err)
	}
	if len(templates) != 1 {
		t.Fatal("deactivated document templates should not be offered")
	}
}

func TestDocumentGeneration(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	staff, err := env.newUser("staffer")
	if err != nil {
		t.Fatal(err)
	}
	other, err := env.newUser("other")
	if err != nil {
		t.Fatal(err)
	}

	shippingId, err := env.createTemplate(&admin, "Grimaldi Shipping", schema.GrimaldiShipping, shippingFields())
	if err != nil {
		t.Fatal(err)
	}
	labelsId, err := admin.createTemplate("Labels", schema.Labels)
	if err != nil {
		t.Fatal(err)
	}

	bookingId, err := staff.submitBooking(shippingId, map[string]interface{}{
		"vessel":            "Grande Roma",
		"cargo_description": "Machine parts",
		"port_of_loading":   "Lagos",
		"port_of_discharge": "Tema",
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := staff.generateDocument(bookingId, labelsId)
	if err != nil {
		t.Fatal(err)
	}

	body := res.Body.String()
	if !strings.Contains(body, "MKY GLOBAL FORWARDING") {
		t.Fatal("document must carry the company header")
	}
	if !strings.Contains(body, "Machine parts") || !strings.Contains(body, "Lagos") {
		t.Fatalf("document missing booking values: %v", body)
	}
	// Absent values render as N/A rather than blank.
	if !strings.Contains(body, "N/A") {
		t.Fatal("missing fields should render as N/A")
	}

	disposition := res.Result().Header.Get("Content-Disposition")
	if !strings.Contains(disposition, "attachment") || !strings.Contains(disposition, "Labels_") {
		t.Fatalf("unexpected content disposition %v", disposition)
	}

	// Shipping templates produce no documents.
	if _, err := staff.generateDocument(bookingId, shippingId); err == nil {
		t.Fatal("non document template should be rejected")
	}

	// Staff cannot generate documents for another user's booking.
	if _, err := other.generateDocument(bookingId, labelsId); err != ErrUnauthorized {
		t.Fatal("expected unauthorized error for foreign booking")
	}
	if _, err := admin.generateDocument(bookingId, labelsId); err != nil {
		t.Fatal(err)
	}
}
