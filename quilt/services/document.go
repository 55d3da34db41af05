package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"quiltplatform/quilt/auth"
	"quiltplatform/quilt/docgen"
	"quiltplatform/quilt/schema"
	"quiltplatform/quilt/tenant"
	"quiltplatform/quilt/utils"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type DocumentService struct {
	db        *gorm.DB
	userAuth  auth.IdentityProvider
	tenantCfg tenant.Config
}

func (s *DocumentService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.SessionMiddleware(s.db, s.tenantCfg))
		r.Use(auth.PrivilegedTenantOnly())
		r.Use(auth.RoleOnly(schema.RoleAdmin, schema.RoleStaff))

		r.Get("/templates", s.Templates)
		r.Get("/generate/{booking_id}", s.Generate)
	})

	return r
}

// Templates lists the active document producing templates. Shipping
// templates are excluded, they feed the booking form instead.
func (s *DocumentService) Templates(w http.ResponseWriter, r *http.Request) {
	var templates []schema.TaskTemplate
	result := s.db.Where("is_active = ? and type in ?", true, schema.DocumentTaskTypes).
		Order("name asc").
		Find(&templates)
	if result.Error != nil {
		err := schema.NewDbError("retrieving document templates", result.Error)
		http.Error(w, fmt.Sprintf("error listing document templates: %v", err), http.StatusBadRequest)
		return
	}

	infos := make([]TemplateInfo, 0, len(templates))
	for i := range templates {
		infos = append(infos, convertToTemplateInfo(&templates[i]))
	}

	utils.WriteJsonResponse(w, infos)
}

// Generate renders a printable document for one booking and offers it as a
// download. Staff can only generate documents for their own bookings.
func (s *DocumentService) Generate(w http.ResponseWriter, r *http.Request) {
	bookingId := chi.URLParam(r, "booking_id")
	templateId := r.URL.Query().Get("template_id")
	if templateId == "" {
		http.Error(w, "missing 'template_id' query parameter", http.StatusBadRequest)
		return
	}

	session, err := auth.SessionFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	booking, err := schema.GetBooking(bookingId, s.db, false)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, schema.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("error retrieving booking: %v", err), status)
		return
	}

	if !sessionScope(session).Visible(booking.UserId) {
		http.Error(w, "access denied", http.StatusUnauthorized)
		return
	}

	template, err := schema.GetTaskTemplate(templateId, s.db, false)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, schema.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("error retrieving template: %v", err), status)
		return
	}

	validDocumentType := false
	for _, taskType := range schema.DocumentTaskTypes {
		if template.Type == taskType {
			validDocumentType = true
			break
		}
	}
	if !validDocumentType {
		http.Error(w, fmt.Sprintf("template '%v' does not produce documents", template.Name), http.StatusBadRequest)
		return
	}

	var data map[string]interface{}
	if booking.BookingData != "" {
		if err := json.Unmarshal([]byte(booking.BookingData), &data); err != nil {
			http.Error(w, fmt.Sprintf("error reading booking data: %v", err), http.StatusBadRequest)
			return
		}
	}

	route := documentRoute(data)
	doc := docgen.FromBookingData(booking.Id, template.Name, route, data)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename()))

	if err := docgen.Generate(w, doc); err != nil {
		http.Error(w, fmt.Sprintf("error generating document: %v", err), http.StatusInternalServerError)
		return
	}
}

func documentRoute(data map[string]interface{}) string {
	field := func(key string) string {
		if value, ok := data[key].(string); ok && value != "" {
			return value
		}
		return "N/A"
	}
	return fmt.Sprintf("%v to %v", field("port_of_loading"), field("port_of_discharge"))
}
