package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"quiltplatform/quilt/feed"
	"quiltplatform/quilt/services"

	"github.com/go-chi/chi/v5"
)

type client struct {
	api    chi.Router
	token  string
	userId string
}

type loginInfo struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func jsonError(err error) error {
	return fmt.Errorf("json encode/decode error: %w", err)
}

var ErrUnauthorized = errors.New("unauthorized")

func get[T any](c *client, endpoint string) (T, error) {
	req := httptest.NewRequest("GET", endpoint, nil)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %v", c.token))
	w := httptest.NewRecorder()
	c.api.ServeHTTP(w, req)

	var data T

	res := w.Result()
	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return data, ErrUnauthorized
		}
		return data, fmt.Errorf("get %v failed with status %d and res '%v'", endpoint, res.StatusCode, w.Body.String())
	}

	err := json.NewDecoder(res.Body).Decode(&data)
	if err != nil {
		return data, err
	}

	return data, nil
}

// getRaw fetches an endpoint that does not return json, such as the document
// generator.
func (c *client) getRaw(endpoint string) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest("GET", endpoint, nil)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %v", c.token))
	w := httptest.NewRecorder()
	c.api.ServeHTTP(w, req)

	res := w.Result()
	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("get %v failed with status %d and res '%v'", endpoint, res.StatusCode, w.Body.String())
	}

	return w, nil
}

type NoBody struct{}

func post[T any](c *client, endpoint string, body []byte) (T, error) {
	req := httptest.NewRequest("POST", endpoint, bytes.NewReader(body))
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %v", c.token))
	w := httptest.NewRecorder()
	c.api.ServeHTTP(w, req)

	var data T

	res := w.Result()
	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return data, ErrUnauthorized
		}
		return data, fmt.Errorf("post %v failed with status %d and res '%v'", endpoint, res.StatusCode, w.Body.String())
	}

	err := json.NewDecoder(res.Body).Decode(&data)
	if err != nil {
		return data, err
	}

	return data, nil
}

func deleteReq(c *client, endpoint string) error {
	req := httptest.NewRequest("DELETE", endpoint, nil)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %v", c.token))

	w := httptest.NewRecorder()
	c.api.ServeHTTP(w, req)

	res := w.Result()
	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return fmt.Errorf("delete %v failed with status %d and res '%v'", endpoint, res.StatusCode, w.Body.String())
	}

	return nil
}

func (c *client) signup(name, email, password string) (loginInfo, error) {
	body, err := json.Marshal(map[string]string{
		"name": name, "email": email, "password": password,
	})
	if err != nil {
		return loginInfo{}, jsonError(err)
	}

	_, err = post[map[string]string](c, "/api/user/signup", body)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) login(login loginInfo) error {
	body, err := json.Marshal(login)
	if err != nil {
		return jsonError(err)
	}

	data, err := post[map[string]string](c, "/api/user/login", body)
	if err != nil {
		return err
	}

	c.token = data["access_token"]
	c.userId = data["user_id"]

	return nil
}

type selfInfo struct {
	services.UserInfo
	IsPrivilegedTenant bool `json:"is_privileged_tenant"`
}

func (c *client) userInfo() (selfInfo, error) {
	return get[selfInfo](c, "/api/user/info")
}

func (c *client) listUsers() ([]services.UserInfo, error) {
	return get[[]services.UserInfo](c, "/api/user/list")
}

func (c *client) createUser(name, email, password, role string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"name": name, "email": email, "password": password, "role": role,
	})
	if err != nil {
		return "", jsonError(err)
	}

	data, err := post[map[string]string](c, "/api/user/create", body)
	if err != nil {
		return "", err
	}
	return data["user_id"], nil
}

func (c *client) updateUser(userId string, updates map[string]interface{}) error {
	body, err := json.Marshal(updates)
	if err != nil {
		return jsonError(err)
	}
	_, err = post[NoBody](c, fmt.Sprintf("/api/user/%v/update", userId), body)
	return err
}

func (c *client) deleteUser(userId string) error {
	return deleteReq(c, fmt.Sprintf("/api/user/%v", userId))
}

func (c *client) createTemplate(name, taskType string) (string, error) {
	body, err := json.Marshal(map[string]string{"name": name, "type": taskType})
	if err != nil {
		return "", jsonError(err)
	}

	data, err := post[map[string]string](c, "/api/templates/create", body)
	if err != nil {
		return "", err
	}
	return data["template_id"], nil
}

func (c *client) listTemplates() ([]services.TemplateInfo, error) {
	return get[[]services.TemplateInfo](c, "/api/templates/list")
}

func (c *client) deactivateTemplate(templateId string) error {
	return deleteReq(c, fmt.Sprintf("/api/templates/%v", templateId))
}

type fieldSpec struct {
	FieldName    string   `json:"field_name"`
	FieldLabel   string   `json:"field_label"`
	FieldType    string   `json:"field_type"`
	IsRequired   bool     `json:"is_required"`
	FieldOptions []string `json:"field_options,omitempty"`
	FieldOrder   int      `json:"field_order"`
}

func (c *client) createField(templateId string, field fieldSpec) (string, error) {
	body, err := json.Marshal(field)
	if err != nil {
		return "", jsonError(err)
	}

	data, err := post[map[string]string](c, fmt.Sprintf("/api/templates/%v/fields/create", templateId), body)
	if err != nil {
		return "", err
	}
	return data["field_id"], nil
}

func (c *client) listFields(templateId string) ([]services.FieldInfo, error) {
	return get[[]services.FieldInfo](c, fmt.Sprintf("/api/templates/%v/fields", templateId))
}

func (c *client) deleteField(fieldId string) error {
	return deleteReq(c, fmt.Sprintf("/api/templates/fields/%v", fieldId))
}

func (c *client) submitBooking(templateId string, data map[string]interface{}) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"task_template_id": templateId,
		"booking_data":     data,
	})
	if err != nil {
		return "", jsonError(err)
	}

	res, err := post[map[string]string](c, "/api/bookings/submit", body)
	if err != nil {
		return "", err
	}
	return res["booking_id"], nil
}

func (c *client) createBooking(templateId string, data map[string]interface{}, status string) (string, error) {
	payload := map[string]interface{}{
		"task_template_id": templateId,
		"booking_data":     data,
	}
	if status != "" {
		payload["status"] = status
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", jsonError(err)
	}

	res, err := post[map[string]string](c, "/api/bookings/create", body)
	if err != nil {
		return "", err
	}
	return res["booking_id"], nil
}

func (c *client) listBookings() ([]feed.BookingRow, error) {
	return get[[]feed.BookingRow](c, "/api/bookings/list")
}

func (c *client) getBooking(bookingId string) (feed.BookingRow, error) {
	return get[feed.BookingRow](c, fmt.Sprintf("/api/bookings/%v", bookingId))
}

func (c *client) updateBooking(bookingId string, data map[string]interface{}) error {
	body, err := json.Marshal(map[string]interface{}{"booking_data": data})
	if err != nil {
		return jsonError(err)
	}
	_, err = post[NoBody](c, fmt.Sprintf("/api/bookings/%v/update", bookingId), body)
	return err
}

func (c *client) updateBookingStatus(bookingId, status string) error {
	body, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return jsonError(err)
	}
	_, err = post[NoBody](c, fmt.Sprintf("/api/bookings/%v/status", bookingId), body)
	return err
}

func (c *client) deleteBooking(bookingId string) error {
	return deleteReq(c, fmt.Sprintf("/api/bookings/%v", bookingId))
}

func (c *client) listDocumentTemplates() ([]services.TemplateInfo, error) {
	return get[[]services.TemplateInfo](c, "/api/documents/templates")
}

func (c *client) generateDocument(bookingId, templateId string) (*httptest.ResponseRecorder, error) {
	return c.getRaw(fmt.Sprintf("/api/documents/generate/%v?template_id=%v", bookingId, templateId))
}

func (c *client) listAuditLogs(recordId string) ([]services.AuditLogEntry, error) {
	endpoint := "/api/audit/list"
	if recordId != "" {
		endpoint = fmt.Sprintf("%v?record_id=%v", endpoint, recordId)
	}
	return get[[]services.AuditLogEntry](c, endpoint)
}

// gatewayRedirect hits the root route and returns the redirect status code
// and location.
func (c *client) gatewayRedirect() (int, string) {
	req := httptest.NewRequest("GET", "/", nil)
	if c.token != "" {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %v", c.token))
	}
	w := httptest.NewRecorder()
	c.api.ServeHTTP(w, req)

	return w.Result().StatusCode, w.Result().Header.Get("Location")
}
