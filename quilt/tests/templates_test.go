package tests

import (
	"quiltplatform/quilt/schema"
	"testing"
)

func TestTemplateManagement(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	staff, err := env.newUser("staffer")
	if err != nil {
		t.Fatal(err)
	}

	templateId, err := admin.createTemplate("Grimaldi Shipping", schema.GrimaldiShipping)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := admin.createTemplate("Bad", "NOT_A_TYPE"); err == nil {
		t.Fatal("invalid task type should be rejected")
	}

	// Staff can list templates but cannot create them.
	templates, err := staff.listTemplates()
	if err != nil {
		t.Fatal(err)
	}
	if len(templates) != 1 || templates[0].Id != templateId {
		t.Fatalf("unexpected template list %v", templates)
	}
	if _, err := staff.createTemplate("Orient", schema.OrientShipping); err != ErrUnauthorized {
		t.Fatal("expected unauthorized error for staff template create")
	}

	if err := admin.deactivateTemplate(templateId); err != nil {
		t.Fatal(err)
	}

	// Deactivated templates disappear from the list but the row survives.
	templates, err = staff.listTemplates()
	if err != nil {
		t.Fatal(err)
	}
	if len(templates) != 0 {
		t.Fatal("deactivated template should not be listed")
	}

	var count int64
	if err := env.db.Model(&schema.TaskTemplate{}).Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatal("deactivation must not delete the template row")
	}
}

func TestFieldDefinitions(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	templateId, err := admin.createTemplate("General Shipping", schema.GeneralShipping)
	if err != nil {
		t.Fatal(err)
	}

	fields := []fieldSpec{
		{FieldName: "priority", FieldLabel: "Priority", FieldType: schema.FieldSelect, IsRequired: true, FieldOptions: []string{"Low", "High"}, FieldOrder: 2},
		{FieldName: "notes", FieldLabel: "Notes", FieldType: schema.FieldTextarea, FieldOrder: 1},
		{FieldName: "fragile", FieldLabel: "Fragile", FieldType: schema.FieldCheckbox, FieldOrder: 3},
	}
	for _, field := range fields {
		if _, err := admin.createField(templateId, field); err != nil {
			t.Fatal(err)
		}
	}

	// Duplicate names within one template are rejected.
	_, err = admin.createField(templateId, fieldSpec{FieldName: "notes", FieldLabel: "Notes 2", FieldType: schema.FieldText})
	if err == nil {
		t.Fatal("duplicate field name should be rejected")
	}

	// The same name is fine on another template.
	otherId, err := admin.createTemplate("Labels", schema.Labels)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := admin.createField(otherId, fieldSpec{FieldName: "notes", FieldLabel: "Notes", FieldType: schema.FieldText}); err != nil {
		t.Fatal(err)
	}

	_, err = admin.createField(templateId, fieldSpec{FieldName: "bad", FieldLabel: "Bad", FieldType: "slider"})
	if err == nil {
		t.Fatal("invalid field type should be rejected")
	}

	listed, err := admin.listFields(templateId)
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(listed))
	}
	// Ascending field_order.
	if listed[0].FieldName != "notes" || listed[1].FieldName != "priority" || listed[2].FieldName != "fragile" {
		t.Fatalf("fields out of order: %v", listed)
	}
	if len(listed[1].FieldOptions) != 2 {
		t.Fatalf("expected 2 options for select field, got %v", listed[1].FieldOptions)
	}

	if err := admin.deleteField(listed[2].Id); err != nil {
		t.Fatal(err)
	}
	listed, err = admin.listFields(templateId)
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 fields after delete, got %d", len(listed))
	}
}

func TestLoadedFieldsKeepDeclaredOrder(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	templateId, err := env.createTemplate(&admin, "Orient Shipping", schema.OrientShipping, []fieldSpec{
		{FieldName: "beta", FieldLabel: "Beta", FieldType: schema.FieldText, FieldOrder: 1},
		{FieldName: "alpha", FieldLabel: "Alpha", FieldType: schema.FieldText, FieldOrder: 0},
		{FieldName: "gamma", FieldLabel: "Gamma", FieldType: schema.FieldText, FieldOrder: 1},
	})
	if err != nil {
		t.Fatal(err)
	}

	// The preloaded slice must already be ordered by field_order, with
	// equal orders falling back to insertion order.
	template, err := schema.GetTaskTemplate(templateId, env.db, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(template.Fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(template.Fields))
	}
	for i, name := range []string{"alpha", "beta", "gamma"} {
		if template.Fields[i].FieldName != name {
			t.Fatalf("fields out of order: %v", template.Fields)
		}
	}
}
