package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"quiltplatform/quilt/auth"
	"quiltplatform/quilt/feed"
	"quiltplatform/quilt/schema"
	"quiltplatform/quilt/tenant"
	"quiltplatform/quilt/utils"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TemplateService struct {
	db        *gorm.DB
	userAuth  auth.IdentityProvider
	tenantCfg tenant.Config
	hub       *feed.Hub
}

func (s *TemplateService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.SessionMiddleware(s.db, s.tenantCfg))
		r.Use(auth.PrivilegedTenantOnly())
		r.Use(auth.RoleOnly(schema.RoleAdmin, schema.RoleStaff))

		r.Get("/list", s.List)
		r.Get("/feed", s.Feed)
		r.Get("/{template_id}/fields", s.ListFields)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.SessionMiddleware(s.db, s.tenantCfg))
		r.Use(auth.PrivilegedTenantOnly())
		r.Use(auth.AdminOnly())

		r.Post("/create", s.Create)
		r.Post("/{template_id}/update", s.Update)
		r.Delete("/{template_id}", s.Deactivate)

		r.Post("/{template_id}/fields/create", s.CreateField)
		r.Post("/fields/{field_id}/update", s.UpdateField)
		r.Delete("/fields/{field_id}", s.DeleteField)
	})

	return r
}

type TemplateInfo struct {
	Id          string  `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description *string `json:"description,omitempty"`
	IsActive    bool    `json:"is_active"`
}

func convertToTemplateInfo(template *schema.TaskTemplate) TemplateInfo {
	return TemplateInfo{
		Id:          template.Id,
		Name:        template.Name,
		Type:        template.Type,
		Description: template.Description,
		IsActive:    template.IsActive,
	}
}

func listActiveTemplates(db *gorm.DB) ([]TemplateInfo, error) {
	var templates []schema.TaskTemplate
	result := db.Where("is_active = ?", true).Order("name asc").Find(&templates)
	if result.Error != nil {
		return nil, schema.NewDbError("retrieving active task templates", result.Error)
	}

	infos := make([]TemplateInfo, 0, len(templates))
	for i := range templates {
		infos = append(infos, convertToTemplateInfo(&templates[i]))
	}
	return infos, nil
}

// List returns the active templates ordered by name. Deactivated templates
// never appear here; their bookings keep referencing them by id.
func (s *TemplateService) List(w http.ResponseWriter, r *http.Request) {
	infos, err := listActiveTemplates(s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing templates: %v", err), http.StatusBadRequest)
		return
	}

	utils.WriteJsonResponse(w, infos)
}

// Feed streams the active template list over server sent events. Every
// template change is answered with a fresh snapshot because activation state
// decides list membership.
func (s *TemplateService) Feed(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming is not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before the snapshot loads so changes committed during the
	// load are still delivered.
	sub := s.hub.Subscribe("task_templates")
	defer sub.Close()

	infos, err := listActiveTemplates(s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading templates: %v", err), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSse(w, flusher, "SNAPSHOT", infos)

	for {
		select {
		case <-r.Context().Done():
			return
		case _, open := <-sub.C:
			if !open {
				return
			}
			infos, err := listActiveTemplates(s.db)
			if err != nil {
				slog.Error("error refreshing template feed", "error", err)
				continue
			}
			writeSse(w, flusher, "SNAPSHOT", infos)
		}
	}
}

type FieldInfo struct {
	Id           string   `json:"id"`
	FieldName    string   `json:"field_name"`
	FieldLabel   string   `json:"field_label"`
	FieldType    string   `json:"field_type"`
	IsRequired   bool     `json:"is_required"`
	FieldOptions []string `json:"field_options,omitempty"`
	FieldOrder   int      `json:"field_order"`
}

func convertToFieldInfo(def *schema.FieldDefinition) FieldInfo {
	info := FieldInfo{
		Id:         def.Id,
		FieldName:  def.FieldName,
		FieldLabel: def.FieldLabel,
		FieldType:  def.FieldType,
		IsRequired: def.IsRequired,
		FieldOrder: def.FieldOrder,
	}
	if def.FieldOptions != "" {
		_ = json.Unmarshal([]byte(def.FieldOptions), &info.FieldOptions)
	}
	return info
}

func listTemplateFields(db *gorm.DB, templateId string) ([]schema.FieldDefinition, error) {
	exists, err := schema.TaskTemplateExists(db, templateId)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("no task template with id %v: %w", templateId, schema.ErrNotFound)
	}

	var defs []schema.FieldDefinition
	// Ascending field_order; equal orders fall back to insertion order.
	result := db.Where("task_template_id = ?", templateId).
		Order("field_order asc, created_at asc").
		Find(&defs)
	if result.Error != nil {
		return nil, schema.NewDbError("retrieving field definitions", result.Error)
	}

	return defs, nil
}

func (s *TemplateService) ListFields(w http.ResponseWriter, r *http.Request) {
	templateId := chi.URLParam(r, "template_id")

	defs, err := listTemplateFields(s.db, templateId)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, schema.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("error listing fields: %v", err), status)
		return
	}

	infos := make([]FieldInfo, 0, len(defs))
	for i := range defs {
		infos = append(infos, convertToFieldInfo(&defs[i]))
	}

	utils.WriteJsonResponse(w, infos)
}

type createTemplateRequest struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description *string `json:"description,omitempty"`
}

func (s *TemplateService) publishTemplateEvent(eventType feed.EventType, template *schema.TaskTemplate) {
	patch := map[string]json.RawMessage{}
	if eventType != feed.Deleted {
		name, _ := json.Marshal(template.Name)
		taskType, _ := json.Marshal(template.Type)
		isActive, _ := json.Marshal(template.IsActive)
		patch["name"] = name
		patch["type"] = taskType
		patch["is_active"] = isActive
	}

	s.hub.Publish(feed.Event{
		Type:  eventType,
		Table: "task_templates",
		Id:    template.Id,
		Patch: patch,
	})
}

func (s *TemplateService) Create(w http.ResponseWriter, r *http.Request) {
	var params createTemplateRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	session, err := auth.SessionFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if params.Name == "" {
		http.Error(w, "template name must not be empty", http.StatusBadRequest)
		return
	}
	if err := schema.CheckValidTaskType(params.Type); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	newTemplate := schema.TaskTemplate{
		Id:          uuid.New().String(),
		Name:        params.Name,
		Type:        params.Type,
		Description: params.Description,
		IsActive:    true,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Create(&newTemplate); result.Error != nil {
			return schema.NewDbError("creating new task template", result.Error)
		}
		return recordAudit(txn, session, "task_templates", newTemplate.Id, schema.AuditInsert, nil, convertToTemplateInfo(&newTemplate))
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating template: %v", err), http.StatusBadRequest)
		return
	}

	s.publishTemplateEvent(feed.Inserted, &newTemplate)

	utils.WriteJsonResponse(w, map[string]string{"template_id": newTemplate.Id})
}

type updateTemplateRequest struct {
	Name        *string `json:"name,omitempty"`
	Type        *string `json:"type,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

func (s *TemplateService) Update(w http.ResponseWriter, r *http.Request) {
	templateId := chi.URLParam(r, "template_id")

	var params updateTemplateRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	session, err := auth.SessionFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if params.Type != nil {
		if err := schema.CheckValidTaskType(*params.Type); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	var updated schema.TaskTemplate
	err = s.db.Transaction(func(txn *gorm.DB) error {
		template, err := schema.GetTaskTemplate(templateId, txn, false)
		if err != nil {
			return err
		}
		before := convertToTemplateInfo(&template)

		if params.Name != nil {
			template.Name = *params.Name
		}
		if params.Type != nil {
			template.Type = *params.Type
		}
		if params.Description != nil {
			template.Description = params.Description
		}
		if params.IsActive != nil {
			template.IsActive = *params.IsActive
		}
		template.UpdatedAt = time.Now()

		if result := txn.Save(&template); result.Error != nil {
			return schema.NewDbError("updating task template", result.Error)
		}
		updated = template

		return recordAudit(txn, session, "task_templates", template.Id, schema.AuditUpdate, before, convertToTemplateInfo(&template))
	})

	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, schema.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("error updating template: %v", err), status)
		return
	}

	s.publishTemplateEvent(feed.Updated, &updated)

	utils.WriteSuccess(w)
}

// Deactivate soft-deletes a template. Templates are never hard-deleted so
// existing bookings keep a valid reference.
func (s *TemplateService) Deactivate(w http.ResponseWriter, r *http.Request) {
	templateId := chi.URLParam(r, "template_id")

	session, err := auth.SessionFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var updated schema.TaskTemplate
	err = s.db.Transaction(func(txn *gorm.DB) error {
		template, err := schema.GetTaskTemplate(templateId, txn, false)
		if err != nil {
			return err
		}
		before := convertToTemplateInfo(&template)

		template.IsActive = false
		template.UpdatedAt = time.Now()

		if result := txn.Save(&template); result.Error != nil {
			return schema.NewDbError("deactivating task template", result.Error)
		}
		updated = template

		return recordAudit(txn, session, "task_templates", template.Id, schema.AuditUpdate, before, convertToTemplateInfo(&template))
	})

	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, schema.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("error deactivating template: %v", err), status)
		return
	}

	s.publishTemplateEvent(feed.Updated, &updated)

	utils.WriteSuccess(w)
}

type createFieldRequest struct {
	FieldName    string   `json:"field_name"`
	FieldLabel   string   `json:"field_label"`
	FieldType    string   `json:"field_type"`
	IsRequired   bool     `json:"is_required"`
	FieldOptions []string `json:"field_options,omitempty"`
	FieldOrder   int      `json:"field_order"`
}

func (s *TemplateService) CreateField(w http.ResponseWriter, r *http.Request) {
	templateId := chi.URLParam(r, "template_id")

	var params createFieldRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	session, err := auth.SessionFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if params.FieldName == "" {
		http.Error(w, "field_name must not be empty", http.StatusBadRequest)
		return
	}
	if err := schema.CheckValidFieldType(params.FieldType); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	newField := schema.FieldDefinition{
		Id:             uuid.New().String(),
		TaskTemplateId: templateId,
		FieldName:      params.FieldName,
		FieldLabel:     params.FieldLabel,
		FieldType:      params.FieldType,
		IsRequired:     params.IsRequired,
		FieldOrder:     params.FieldOrder,
	}
	if params.FieldOptions != nil {
		options, err := json.Marshal(params.FieldOptions)
		if err != nil {
			http.Error(w, fmt.Sprintf("error serializing field options: %v", err), http.StatusBadRequest)
			return
		}
		newField.FieldOptions = string(options)
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		exists, err := schema.TaskTemplateExists(txn, templateId)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("no task template with id %v: %w", templateId, schema.ErrNotFound)
		}

		// field_name must be unique within its template.
		var existing schema.FieldDefinition
		result := txn.Find(&existing, "task_template_id = ? and field_name = ?", templateId, params.FieldName)
		if result.Error != nil {
			return schema.NewDbError("checking for existing field name", result.Error)
		}
		if result.RowsAffected != 0 {
			return fmt.Errorf("field '%v' already exists for this template", params.FieldName)
		}

		if result := txn.Create(&newField); result.Error != nil {
			return schema.NewDbError("creating new field definition", result.Error)
		}

		return recordAudit(txn, session, "field_definitions", newField.Id, schema.AuditInsert, nil, convertToFieldInfo(&newField))
	})

	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, schema.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("error creating field: %v", err), status)
		return
	}

	utils.WriteJsonResponse(w, map[string]string{"field_id": newField.Id})
}

type updateFieldRequest struct {
	FieldLabel   *string  `json:"field_label,omitempty"`
	FieldType    *string  `json:"field_type,omitempty"`
	IsRequired   *bool    `json:"is_required,omitempty"`
	FieldOptions []string `json:"field_options,omitempty"`
	FieldOrder   *int     `json:"field_order,omitempty"`
}

func (s *TemplateService) UpdateField(w http.ResponseWriter, r *http.Request) {
	fieldId := chi.URLParam(r, "field_id")

	var params updateFieldRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	session, err := auth.SessionFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if params.FieldType != nil {
		if err := schema.CheckValidFieldType(*params.FieldType); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var field schema.FieldDefinition
		result := txn.First(&field, "id = ?", fieldId)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("no field definition with id %v: %w", fieldId, schema.ErrNotFound)
			}
			return schema.NewDbError("retrieving field definition", result.Error)
		}
		before := convertToFieldInfo(&field)

		if params.FieldLabel != nil {
			field.FieldLabel = *params.FieldLabel
		}
		if params.FieldType != nil {
			field.FieldType = *params.FieldType
		}
		if params.IsRequired != nil {
			field.IsRequired = *params.IsRequired
		}
		if params.FieldOptions != nil {
			options, err := json.Marshal(params.FieldOptions)
			if err != nil {
				return fmt.Errorf("error serializing field options: %w", err)
			}
			field.FieldOptions = string(options)
		}
		if params.FieldOrder != nil {
			field.FieldOrder = *params.FieldOrder
		}

		if result := txn.Save(&field); result.Error != nil {
			return schema.NewDbError("updating field definition", result.Error)
		}

		return recordAudit(txn, session, "field_definitions", field.Id, schema.AuditUpdate, before, convertToFieldInfo(&field))
	})

	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, schema.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("error updating field: %v", err), status)
		return
	}

	utils.WriteSuccess(w)
}

func (s *TemplateService) DeleteField(w http.ResponseWriter, r *http.Request) {
	fieldId := chi.URLParam(r, "field_id")

	session, err := auth.SessionFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		var field schema.FieldDefinition
		result := txn.First(&field, "id = ?", fieldId)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("no field definition with id %v: %w", fieldId, schema.ErrNotFound)
			}
			return schema.NewDbError("retrieving field definition", result.Error)
		}
		before := convertToFieldInfo(&field)

		if result := txn.Delete(&schema.FieldDefinition{Id: fieldId}); result.Error != nil {
			return schema.NewDbError("deleting field definition", result.Error)
		}

		return recordAudit(txn, session, "field_definitions", fieldId, schema.AuditDelete, before, nil)
	})

	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, schema.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("error deleting field: %v", err), status)
		return
	}

	utils.WriteSuccess(w)
}
