package forms

import (
	"encoding/json"
	"fmt"
	"quiltplatform/quilt/schema"
	"slices"
	"sort"
)

// Field is one schema-declared input slot of a task template.
type Field struct {
	Name     string
	Label    string
	Type     string
	Required bool
	Options  []string
	Order    int
}

// FieldsFromSchema converts stored field definitions into engine fields.
// Option lists that are not valid json arrays degrade to no options, which
// the select dispatch treats as "nothing selectable".
func FieldsFromSchema(defs []schema.FieldDefinition) []Field {
	fields := make([]Field, 0, len(defs))
	for _, def := range defs {
		field := Field{
			Name:     def.FieldName,
			Label:    def.FieldLabel,
			Type:     def.FieldType,
			Required: def.IsRequired,
			Order:    def.FieldOrder,
		}
		if def.FieldOptions != "" {
			var options []string
			if err := json.Unmarshal([]byte(def.FieldOptions), &options); err == nil {
				field.Options = options
			}
		}
		fields = append(fields, field)
	}
	return fields
}

// Form accumulates values for one template's field list. Fields with an
// unknown type are dropped at construction: they render nothing and emit no
// key.
type Form struct {
	fields []Field
	byName map[string]int
	values map[string]Value
}

func New(fields []Field) (*Form, error) {
	kept := make([]Field, 0, len(fields))
	for _, field := range fields {
		if err := schema.CheckValidFieldType(field.Type); err != nil {
			continue
		}
		kept = append(kept, field)
	}

	// Ascending field_order, ties broken by the order fields were declared.
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Order < kept[j].Order })

	f := &Form{fields: kept, byName: make(map[string]int, len(kept))}
	for i, field := range kept {
		if _, exists := f.byName[field.Name]; exists {
			return nil, fmt.Errorf("duplicate field name '%v' in template", field.Name)
		}
		f.byName[field.Name] = i
	}

	f.Reset()
	return f, nil
}

// Reset reseeds every field to its initial value: false for checkboxes,
// the empty string for everything else.
func (f *Form) Reset() {
	f.values = make(map[string]Value, len(f.fields))
	for _, field := range f.fields {
		if field.Type == schema.FieldCheckbox {
			f.values[field.Name] = Bool(false)
		} else {
			f.values[field.Name] = String("")
		}
	}
}

func (f *Form) Fields() []Field {
	return slices.Clone(f.fields)
}

// Set records a raw submitted value for the named field, dispatching on the
// field's declared type. Unknown field names are rejected so a payload can
// never smuggle keys outside the template's schema.
func (f *Form) Set(name string, raw Value) error {
	idx, ok := f.byName[name]
	if !ok {
		return fmt.Errorf("field '%v' is not declared by the selected template", name)
	}
	field := f.fields[idx]

	switch field.Type {
	case schema.FieldCheckbox:
		if raw.Kind() != KindBool {
			return fmt.Errorf("field '%v' expects a boolean", name)
		}
		f.values[name] = raw
		return nil

	case schema.FieldText, schema.FieldTextarea:
		if raw.Kind() == KindBool {
			return fmt.Errorf("field '%v' expects a string", name)
		}
		f.values[name] = String(raw.Str())
		return nil

	case schema.FieldNumber:
		if raw.Kind() == KindBool {
			return fmt.Errorf("field '%v' expects a numeric string", name)
		}
		value, err := Number(raw.Str())
		if err != nil {
			return fmt.Errorf("field '%v': %w", name, err)
		}
		f.values[name] = value
		return nil

	case schema.FieldDate:
		if raw.Kind() == KindBool {
			return fmt.Errorf("field '%v' expects a date string", name)
		}
		value, err := Date(raw.Str())
		if err != nil {
			return fmt.Errorf("field '%v': %w", name, err)
		}
		f.values[name] = value
		return nil

	case schema.FieldSelect:
		if raw.Kind() == KindBool {
			return fmt.Errorf("field '%v' expects one of its options", name)
		}
		choice := raw.Str()
		if choice == "" {
			f.values[name] = String("")
			return nil
		}
		if !slices.Contains(field.Options, choice) {
			return fmt.Errorf("field '%v' has no option '%v'", name, choice)
		}
		f.values[name] = String(choice)
		return nil
	}

	return fmt.Errorf("field '%v' has unsupported type '%v'", name, field.Type)
}

// Apply sets every entry of a submitted value map, failing on the first
// invalid one.
func (f *Form) Apply(values map[string]Value) error {
	for name, value := range values {
		if err := f.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

// Validate enforces required fields. Checkboxes are exempt: they always
// carry a definite boolean, so "required" has no blocking meaning for them.
func (f *Form) Validate() error {
	for _, field := range f.fields {
		if !field.Required || field.Type == schema.FieldCheckbox {
			continue
		}
		if f.values[field.Name].IsEmpty() {
			return fmt.Errorf("required field '%v' is empty", field.Label)
		}
	}
	return nil
}

// Values returns a copy of the current field values, one entry per declared
// field.
func (f *Form) Values() map[string]Value {
	values := make(map[string]Value, len(f.values))
	for name, value := range f.values {
		values[name] = value
	}
	return values
}

// StandardFieldNames is the fixed shipping field set merged into every
// booking alongside the template's dynamic fields.
var StandardFieldNames = []string{
	"client_address",
	"cargo_description",
	"vat_id",
	"exporter_tax_id",
	"importer_tax_id",
	"units",
	"weight_kg",
	"port_of_loading",
	"port_of_discharge",
	"marks",
}

func standardFields() map[string]Value {
	fields := make(map[string]Value, len(StandardFieldNames))
	for _, name := range StandardFieldNames {
		fields[name] = String("")
	}
	return fields
}

// Submission is the payload handed to the booking lifecycle on form submit.
type Submission struct {
	TaskTemplateId string           `json:"task_template_id"`
	UserId         string           `json:"user_id"`
	BookingData    map[string]Value `json:"booking_data"`
	Status         string           `json:"status"`
}

// Submission validates the form and assembles the booking payload: the
// standard shipping fields merged with the dynamic values, dynamic values
// winning on key collisions. The form is reset to its seeded state on
// success so a following entry starts blank.
func (f *Form) Submission(templateId, userId string) (Submission, error) {
	if err := f.Validate(); err != nil {
		return Submission{}, err
	}

	data := standardFields()
	for name, value := range f.values {
		data[name] = value
	}

	submission := Submission{
		TaskTemplateId: templateId,
		UserId:         userId,
		BookingData:    data,
		Status:         schema.BookingSubmitted,
	}

	f.Reset()
	return submission, nil
}
