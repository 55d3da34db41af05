package docgen

import (
	"bytes"
	"strings"
	"testing"
)

func TestFromBookingData(t *testing.T) {
	doc := FromBookingData("booking-1234-5678", "Labels", "Lagos to Tema", map[string]interface{}{
		"cargo_description": "Machine parts",
		"port_of_loading":   "Lagos",
		"weight_kg":         "1200",
		// Wrong type and empty values must degrade the same as absent ones.
		"fragile": true,
		"vat_id":  "",
	})

	if doc.CargoDescription != "Machine parts" || doc.WeightKg != "1200" {
		t.Fatalf("values not carried over: %+v", doc)
	}
	if doc.VatId != "N/A" || doc.ExporterTaxId != "N/A" {
		t.Fatal("missing or empty values must render as N/A")
	}
	if doc.Marks != "N/A" {
		t.Fatal("non string values must render as N/A")
	}
}

func TestFilename(t *testing.T) {
	doc := Document{BookingId: "0123456789abcdef", TemplateName: "Delivery Permits"}
	if doc.Filename() != "Delivery_Permits_01234567.html" {
		t.Fatalf("unexpected filename %v", doc.Filename())
	}

	short := Document{BookingId: "b1", TemplateName: "BLC"}
	if short.Filename() != "BLC_b1.html" {
		t.Fatalf("unexpected filename %v", short.Filename())
	}
}

func TestGenerate(t *testing.T) {
	doc := FromBookingData("b1", "Labels", "Lagos to Tema", map[string]interface{}{
		"cargo_description": "Crates <of> parts",
		"marks":             "line one\nline two",
	})

	var buf bytes.Buffer
	if err := Generate(&buf, doc); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	if !strings.Contains(out, "MKY GLOBAL FORWARDING") {
		t.Fatal("company header missing")
	}
	if !strings.Contains(out, "Lagos to Tema") {
		t.Fatal("route missing")
	}
	if strings.Contains(out, "<of>") {
		t.Fatal("values must be html escaped")
	}
	if !strings.Contains(out, "line one<br>line two") {
		t.Fatal("multiline values must render with line breaks")
	}
}
