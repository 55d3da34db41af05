package docgen

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"
)

// Document is the interpolation input for a generated shipping document:
// the booking's standard shipping fields plus the route name of its task
// template. Missing booking values default to "N/A" before interpolation.
type Document struct {
	BookingId    string
	TemplateName string
	Route        string

	ClientAddress    string
	CargoDescription string
	VatId            string
	ExporterTaxId    string
	ImporterTaxId    string
	Units            string
	WeightKg         string
	PortOfLoading    string
	PortOfDischarge  string
	Marks            string

	GeneratedAt time.Time
}

// FromBookingData builds a document from a booking's key/value bag. Values
// of the wrong type degrade to "N/A" the same as absent ones.
func FromBookingData(bookingId, templateName, route string, data map[string]interface{}) Document {
	field := func(key string) string {
		if value, ok := data[key].(string); ok && value != "" {
			return value
		}
		return "N/A"
	}

	return Document{
		BookingId:        bookingId,
		TemplateName:     templateName,
		Route:            route,
		ClientAddress:    field("client_address"),
		CargoDescription: field("cargo_description"),
		VatId:            field("vat_id"),
		ExporterTaxId:    field("exporter_tax_id"),
		ImporterTaxId:    field("importer_tax_id"),
		Units:            field("units"),
		WeightKg:         field("weight_kg"),
		PortOfLoading:    field("port_of_loading"),
		PortOfDischarge:  field("port_of_discharge"),
		Marks:            field("marks"),
		GeneratedAt:      time.Now(),
	}
}

// Filename is the download name offered to the client.
func (d Document) Filename() string {
	name := strings.ReplaceAll(d.TemplateName, " ", "_")
	id := d.BookingId
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%v_%v.html", name, id)
}

var documentTemplate = template.Must(template.New("document").Funcs(template.FuncMap{
	"upper": strings.ToUpper,
	"multiline": func(s string) template.HTML {
		escaped := template.HTMLEscapeString(s)
		return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>"))
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.TemplateName}} - {{.BookingId}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .header { text-align: center; margin-bottom: 30px; border-bottom: 2px solid #1e3a8a; padding-bottom: 20px; }
        .company-info { color: #1e3a8a; }
        .section { margin: 20px 0; }
        .field { margin: 10px 0; }
        .label { font-weight: bold; color: #1e3a8a; }
        .value { margin-left: 20px; }
        .grid { display: grid; grid-template-columns: 1fr 1fr; gap: 20px; }
        @media print { body { margin: 20px; } }
    </style>
</head>
<body>
    <div class="header">
        <h1 class="company-info">MKY GLOBAL FORWARDING</h1>
        <p>Address: KRZYWDA 19A / 52 NIP 6793324716, TEL. +48578773222<br>
        30-730 KRAKOW, POLAND<br>
        Email: mkyglobalforwarding@gmail.com</p>
        <h2 style="color: #dc2626; margin-top: 20px;">{{upper .TemplateName}}</h2>
        <p>Generated: {{.GeneratedAt.Format "2006-01-02 15:04:05"}} | Booking: {{.BookingId}}</p>
    </div>

    <div class="section">
        <h3>Shipping Route Information</h3>
        <div class="field">
            <span class="label">Route:</span>
            <span class="value">{{.Route}}</span>
        </div>
    </div>

    <div class="section">
        <h3>Client Information</h3>
        <div class="field">
            <span class="label">Client Address:</span>
            <div class="value">{{multiline .ClientAddress}}</div>
        </div>
        <div class="grid">
            <div class="field">
                <span class="label">VAT ID:</span>
                <span class="value">{{.VatId}}</span>
            </div>
            <div class="field">
                <span class="label">Exporter Tax ID:</span>
                <span class="value">{{.ExporterTaxId}}</span>
            </div>
            <div class="field">
                <span class="label">Importer Tax ID:</span>
                <span class="value">{{.ImporterTaxId}}</span>
            </div>
        </div>
    </div>

    <div class="section">
        <h3>Cargo Information</h3>
        <div class="field">
            <span class="label">Cargo Description:</span>
            <div class="value">{{multiline .CargoDescription}}</div>
        </div>
        <div class="grid">
            <div class="field">
                <span class="label">Units:</span>
                <span class="value">{{.Units}}</span>
            </div>
            <div class="field">
                <span class="label">Weight (kg):</span>
                <span class="value">{{.WeightKg}}</span>
            </div>
        </div>
        <div class="field">
            <span class="label">Marks:</span>
            <div class="value">{{multiline .Marks}}</div>
        </div>
    </div>

    <div class="section">
        <h3>Port Information</h3>
        <div class="grid">
            <div class="field">
                <span class="label">Port of Loading:</span>
                <span class="value">{{.PortOfLoading}}</span>
            </div>
            <div class="field">
                <span class="label">Port of Discharge:</span>
                <span class="value">{{.PortOfDischarge}}</span>
            </div>
        </div>
    </div>
</body>
</html>
`))

// Generate renders the document into w.
func Generate(w io.Writer, d Document) error {
	if err := documentTemplate.Execute(w, d); err != nil {
		return fmt.Errorf("error rendering document: %w", err)
	}
	return nil
}
