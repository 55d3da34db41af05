package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"quiltplatform/quilt/auth"
	"quiltplatform/quilt/feed"
	"quiltplatform/quilt/forms"
	"quiltplatform/quilt/ids"
	"quiltplatform/quilt/schema"
	"quiltplatform/quilt/tenant"
	"quiltplatform/quilt/utils"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type BookingService struct {
	db        *gorm.DB
	userAuth  auth.IdentityProvider
	tenantCfg tenant.Config
	hub       *feed.Hub
}

func (s *BookingService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.SessionMiddleware(s.db, s.tenantCfg))
		r.Use(auth.PrivilegedTenantOnly())
		r.Use(auth.RoleOnly(schema.RoleAdmin, schema.RoleStaff))

		r.Post("/submit", s.Submit)
		r.Post("/create", s.Create)
		r.Get("/list", s.List)
		r.Get("/feed", s.Feed)
		r.Get("/{booking_id}", s.Get)
		r.Post("/{booking_id}/update", s.Update)
		r.Post("/{booking_id}/status", s.UpdateStatus)
		r.Delete("/{booking_id}", s.Delete)
	})

	return r
}

func sessionScope(session auth.Session) feed.Scope {
	return feed.Scope{
		ViewerId: session.Profile.Id,
		Admin:    session.Profile.Role == schema.RoleAdmin,
	}
}

func convertToBookingRow(booking *schema.Booking) feed.BookingRow {
	row := feed.BookingRow{
		Id:             booking.Id,
		UserId:         booking.UserId,
		TaskTemplateId: booking.TaskTemplateId,
		BookingData:    json.RawMessage(booking.BookingData),
		Status:         booking.Status,
		CreatedAt:      booking.CreatedAt,
		UpdatedAt:      booking.UpdatedAt,
	}
	if booking.TaskTemplate != nil {
		row.TemplateName = booking.TaskTemplate.Name
		row.TemplateType = booking.TaskTemplate.Type
	}
	return row
}

// listBookingRows loads the joined booking list for one viewer, newest
// first. Staff scopes see only their own rows.
func listBookingRows(db *gorm.DB, scope feed.Scope) ([]feed.BookingRow, error) {
	query := db.Preload("TaskTemplate").Order("created_at desc")
	if !scope.Admin {
		query = query.Where("user_id = ?", scope.ViewerId)
	}

	var bookings []schema.Booking
	if result := query.Find(&bookings); result.Error != nil {
		return nil, schema.NewDbError("retrieving bookings", result.Error)
	}

	rows := make([]feed.BookingRow, 0, len(bookings))
	for i := range bookings {
		rows = append(rows, convertToBookingRow(&bookings[i]))
	}
	return rows, nil
}

func (s *BookingService) publishBookingEvent(eventType feed.EventType, booking *schema.Booking) {
	patch := map[string]json.RawMessage{}
	if eventType != feed.Deleted {
		status, _ := json.Marshal(booking.Status)
		templateId, _ := json.Marshal(booking.TaskTemplateId)
		userId, _ := json.Marshal(booking.UserId)
		updatedAt, _ := json.Marshal(booking.UpdatedAt)
		patch["status"] = status
		patch["task_template_id"] = templateId
		patch["user_id"] = userId
		patch["updated_at"] = updatedAt
		patch["booking_data"] = json.RawMessage(booking.BookingData)
	}

	s.hub.Publish(feed.Event{
		Type:   eventType,
		Table:  "bookings",
		Id:     booking.Id,
		UserId: booking.UserId,
		Patch:  patch,
	})
}

// splitStandardValues separates the fixed shipping fields from the dynamic,
// template-declared values. Standard fields are plain text and reject
// booleans.
func splitStandardValues(values map[string]forms.Value) (standard, dynamic map[string]forms.Value, err error) {
	standard = make(map[string]forms.Value)
	dynamic = make(map[string]forms.Value)

	fixed := make(map[string]bool, len(forms.StandardFieldNames))
	for _, name := range forms.StandardFieldNames {
		fixed[name] = true
	}

	for name, value := range values {
		if fixed[name] {
			if value.Kind() == forms.KindBool {
				return nil, nil, fmt.Errorf("field '%v' expects a string", name)
			}
			standard[name] = forms.String(value.Str())
		} else {
			dynamic[name] = value
		}
	}
	return standard, dynamic, nil
}

func activeTemplateForm(db *gorm.DB, templateId string) (*forms.Form, error) {
	template, err := schema.GetTaskTemplate(templateId, db, true)
	if err != nil {
		return nil, err
	}
	if !template.IsActive {
		return nil, fmt.Errorf("task template '%v' is deactivated", template.Name)
	}
	return forms.New(forms.FieldsFromSchema(template.Fields))
}

type submitBookingRequest struct {
	TaskTemplateId string                 `json:"task_template_id"`
	BookingData    map[string]forms.Value `json:"booking_data"`
}

// Submit runs the full form path: values are type-checked against the
// template's schema, required fields are enforced, and the booking is
// created with status Submitted.
func (s *BookingService) Submit(w http.ResponseWriter, r *http.Request) {
	var params submitBookingRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	session, err := auth.SessionFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	form, err := activeTemplateForm(s.db, params.TaskTemplateId)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, schema.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("error submitting booking: %v", err), status)
		return
	}

	standard, dynamic, err := splitStandardValues(params.BookingData)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := form.Apply(dynamic); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	submission, err := form.Submission(params.TaskTemplateId, session.Profile.Id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for name, value := range standard {
		submission.BookingData[name] = value
	}

	booking, err := s.createBooking(session, submission)
	if err != nil {
		http.Error(w, fmt.Sprintf("error submitting booking: %v", err), http.StatusBadRequest)
		return
	}

	s.publishBookingEvent(feed.Inserted, &booking)

	utils.WriteJsonResponse(w, map[string]string{"booking_id": booking.Id})
}

type createBookingRequest struct {
	TaskTemplateId string                 `json:"task_template_id"`
	BookingData    map[string]forms.Value `json:"booking_data,omitempty"`
	Status         string                 `json:"status,omitempty"`
}

// Create stores a booking without the required-field gate. Values are still
// type-checked against the template's schema. Status defaults to Draft.
func (s *BookingService) Create(w http.ResponseWriter, r *http.Request) {
	var params createBookingRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	session, err := auth.SessionFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if params.Status == "" {
		params.Status = schema.BookingDraft
	}
	if err := schema.CheckValidBookingStatus(params.Status); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	form, err := activeTemplateForm(s.db, params.TaskTemplateId)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, schema.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("error creating booking: %v", err), status)
		return
	}

	standard, dynamic, err := splitStandardValues(params.BookingData)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := form.Apply(dynamic); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	data := make(map[string]forms.Value)
	for _, name := range forms.StandardFieldNames {
		data[name] = forms.String("")
	}
	for name, value := range standard {
		data[name] = value
	}
	for name, value := range form.Values() {
		data[name] = value
	}

	booking, err := s.createBooking(session, forms.Submission{
		TaskTemplateId: params.TaskTemplateId,
		UserId:         session.Profile.Id,
		BookingData:    data,
		Status:         params.Status,
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating booking: %v", err), http.StatusBadRequest)
		return
	}

	s.publishBookingEvent(feed.Inserted, &booking)

	utils.WriteJsonResponse(w, map[string]string{"booking_id": booking.Id})
}

func (s *BookingService) createBooking(session auth.Session, submission forms.Submission) (schema.Booking, error) {
	data, err := json.Marshal(submission.BookingData)
	if err != nil {
		return schema.Booking{}, fmt.Errorf("error serializing booking data: %w", err)
	}

	newBooking := schema.Booking{
		Id:             ids.New(),
		UserId:         submission.UserId,
		TaskTemplateId: submission.TaskTemplateId,
		BookingData:    string(data),
		Status:         submission.Status,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Create(&newBooking); result.Error != nil {
			return schema.NewDbError("creating new booking", result.Error)
		}
		return recordAudit(txn, session, "bookings", newBooking.Id, schema.AuditInsert, nil, convertToBookingRow(&newBooking))
	})
	if err != nil {
		return schema.Booking{}, err
	}

	return newBooking, nil
}

func (s *BookingService) List(w http.ResponseWriter, r *http.Request) {
	session, err := auth.SessionFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	rows, err := listBookingRows(s.db, sessionScope(session))
	if err != nil {
		http.Error(w, fmt.Sprintf("error listing bookings: %v", err), http.StatusBadRequest)
		return
	}

	utils.WriteJsonResponse(w, rows)
}

func (s *BookingService) Get(w http.ResponseWriter, r *http.Request) {
	bookingId := chi.URLParam(r, "booking_id")

	session, err := auth.SessionFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	booking, err := schema.GetBooking(bookingId, s.db, true)
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

	utils.WriteJsonResponse(w, convertToBookingRow(&booking))
}

type updateBookingRequest struct {
	TaskTemplateId *string                `json:"task_template_id,omitempty"`
	BookingData    map[string]forms.Value `json:"booking_data,omitempty"`
	Status         *string                `json:"status,omitempty"`
}

// Update patches a booking's data bag and/or status. Staff may only update
// their own bookings; admins may update any. Concurrent writers are not
// reconciled, the last write wins.
func (s *BookingService) Update(w http.ResponseWriter, r *http.Request) {
	bookingId := chi.URLParam(r, "booking_id")

	var params updateBookingRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	session, err := auth.SessionFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if params.Status != nil {
		if err := schema.CheckValidBookingStatus(*params.Status); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	var updated schema.Booking
	err = s.db.Transaction(func(txn *gorm.DB) error {
		booking, err := schema.GetBooking(bookingId, txn, false)
		if err != nil {
			return err
		}
		if !session.CanEditBooking(booking.UserId) {
			return errAccessDenied
		}
		before := convertToBookingRow(&booking)

		if params.TaskTemplateId != nil {
			// Reassignment validates the data against the new template's
			// schema below.
			template, err := schema.GetTaskTemplate(*params.TaskTemplateId, txn, false)
			if err != nil {
				return err
			}
			if !template.IsActive {
				return fmt.Errorf("task template '%v' is deactivated", template.Name)
			}
			booking.TaskTemplateId = template.Id
		}
		if params.BookingData != nil {
			merged, err := s.mergeBookingData(txn, &booking, params.BookingData)
			if err != nil {
				return err
			}
			booking.BookingData = merged
		}
		if params.Status != nil {
			booking.Status = *params.Status
		}
		booking.UpdatedAt = time.Now()

		if result := txn.Save(&booking); result.Error != nil {
			return schema.NewDbError("updating booking", result.Error)
		}
		updated = booking

		return recordAudit(txn, session, "bookings", booking.Id, schema.AuditUpdate, before, convertToBookingRow(&booking))
	})

	if err != nil {
		s.writeBookingError(w, "error updating booking", err)
		return
	}

	s.publishBookingEvent(feed.Updated, &updated)

	utils.WriteSuccess(w)
}

// mergeBookingData folds incoming values into the stored data bag. Incoming
// values are validated against the template's current schema; stored values
// written under an older schema revision carry over untouched.
func (s *BookingService) mergeBookingData(txn *gorm.DB, booking *schema.Booking, incoming map[string]forms.Value) (string, error) {
	template, err := schema.GetTaskTemplate(booking.TaskTemplateId, txn, true)
	if err != nil {
		return "", err
	}
	form, err := forms.New(forms.FieldsFromSchema(template.Fields))
	if err != nil {
		return "", err
	}

	var existing map[string]forms.Value
	if booking.BookingData != "" {
		if err := json.Unmarshal([]byte(booking.BookingData), &existing); err != nil {
			return "", fmt.Errorf("error reading stored booking data: %w", err)
		}
	}

	standard, dynamic, err := splitStandardValues(incoming)
	if err != nil {
		return "", err
	}
	if err := form.Apply(dynamic); err != nil {
		return "", err
	}

	data := make(map[string]forms.Value, len(existing))
	for name, value := range existing {
		data[name] = value
	}
	for name, value := range standard {
		data[name] = value
	}
	for name := range dynamic {
		data[name] = form.Values()[name]
	}

	merged, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("error serializing booking data: %w", err)
	}
	return string(merged), nil
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *BookingService) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	bookingId := chi.URLParam(r, "booking_id")

	var params updateStatusRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	session, err := auth.SessionFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if err := schema.CheckValidBookingStatus(params.Status); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var updated schema.Booking
	err = s.db.Transaction(func(txn *gorm.DB) error {
		booking, err := schema.GetBooking(bookingId, txn, false)
		if err != nil {
			return err
		}
		if !session.CanEditBooking(booking.UserId) {
			return errAccessDenied
		}
		before := convertToBookingRow(&booking)

		booking.Status = params.Status
		booking.UpdatedAt = time.Now()

		if result := txn.Save(&booking); result.Error != nil {
			return schema.NewDbError("updating booking status", result.Error)
		}
		updated = booking

		return recordAudit(txn, session, "bookings", booking.Id, schema.AuditUpdate, before, convertToBookingRow(&booking))
	})

	if err != nil {
		s.writeBookingError(w, "error updating booking status", err)
		return
	}

	s.publishBookingEvent(feed.Updated, &updated)

	utils.WriteSuccess(w)
}

func (s *BookingService) Delete(w http.ResponseWriter, r *http.Request) {
	bookingId := chi.URLParam(r, "booking_id")

	session, err := auth.SessionFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if !session.CanDeleteBooking() {
		http.Error(w, "access denied", http.StatusUnauthorized)
		return
	}

	var deleted schema.Booking
	err = s.db.Transaction(func(txn *gorm.DB) error {
		booking, err := schema.GetBooking(bookingId, txn, false)
		if err != nil {
			return err
		}
		before := convertToBookingRow(&booking)

		if result := txn.Delete(&schema.Booking{Id: bookingId}); result.Error != nil {
			return schema.NewDbError("deleting booking", result.Error)
		}
		deleted = booking

		return recordAudit(txn, session, "bookings", bookingId, schema.AuditDelete, before, nil)
	})

	if err != nil {
		s.writeBookingError(w, "error deleting booking", err)
		return
	}

	s.publishBookingEvent(feed.Deleted, &deleted)

	utils.WriteSuccess(w)
}

// Feed streams the viewer's booking list over server sent events. The
// connection opens with a snapshot of the current rows, then forwards change
// events as they arrive. Inserts are delivered as a fresh snapshot because
// the joined template columns are not part of the event; deletions always
// pass the scope filter so stale rows disappear from every list.
func (s *BookingService) Feed(w http.ResponseWriter, r *http.Request) {
	session, err := auth.SessionFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	scope := sessionScope(session)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming is not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before the snapshot loads. A change committed during the
	// load sits in the subscription buffer and is drained by Run, so the
	// stream never opens with a hole between snapshot and events.
	sub := s.hub.Subscribe("bookings")
	defer sub.Close()

	list, err := feed.NewBookingList(scope, func() ([]feed.BookingRow, error) {
		return listBookingRows(s.db, scope)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading bookings: %v", err), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSse(w, flusher, "SNAPSHOT", list.Rows())

	list.Run(r.Context(), sub, func(e feed.Event) {
		if e.Type != feed.Deleted && !scope.Visible(e.UserId) {
			return
		}
		if e.Type == feed.Inserted {
			writeSse(w, flusher, "SNAPSHOT", list.Rows())
		} else {
			writeSse(w, flusher, string(e.Type), e)
		}
	})
}

func writeSse(w http.ResponseWriter, flusher http.Flusher, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("error serializing feed payload", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

var errAccessDenied = errors.New("access denied")

func (s *BookingService) writeBookingError(w http.ResponseWriter, action string, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, schema.ErrNotFound) {
		status = http.StatusNotFound
	}
	if errors.Is(err, errAccessDenied) {
		status = http.StatusUnauthorized
	}
	http.Error(w, fmt.Sprintf("%v: %v", action, err), status)
}
