package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"quiltplatform/quilt/auth"
	"quiltplatform/quilt/ids"
	"quiltplatform/quilt/schema"
	"quiltplatform/quilt/tenant"
	"quiltplatform/quilt/utils"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type AuditService struct {
	db        *gorm.DB
	userAuth  auth.IdentityProvider
	tenantCfg tenant.Config
}

func (s *AuditService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.SessionMiddleware(s.db, s.tenantCfg))
		r.Use(auth.AdminOnly())

		r.Get("/list", s.List)
	})

	return r
}

type AuditLogEntry struct {
	Id            string          `json:"id"`
	TableName     string          `json:"table_name"`
	RecordId      string          `json:"record_id"`
	Action        string          `json:"action"`
	OldValues     json.RawMessage `json:"old_values,omitempty"`
	NewValues     json.RawMessage `json:"new_values,omitempty"`
	ChangedFields []string        `json:"changed_fields,omitempty"`
	UserId        string          `json:"user_id"`
	UserEmail     string          `json:"user_email,omitempty"`
	UserRole      string          `json:"user_role,omitempty"`
	CreatedAt     string          `json:"created_at"`
}

func convertToAuditLogEntry(log *schema.AuditLog) AuditLogEntry {
	entry := AuditLogEntry{
		Id:        log.Id,
		TableName: log.TableName,
		RecordId:  log.RecordId,
		Action:    log.Action,
		UserId:    log.UserId,
		UserEmail: log.UserEmail,
		UserRole:  log.UserRole,
		CreatedAt: log.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if log.OldValues != nil {
		entry.OldValues = json.RawMessage(*log.OldValues)
	}
	if log.NewValues != nil {
		entry.NewValues = json.RawMessage(*log.NewValues)
	}
	if log.ChangedFields != nil {
		// Tolerate malformed history; an unreadable list renders as absent.
		_ = json.Unmarshal([]byte(*log.ChangedFields), &entry.ChangedFields)
	}
	return entry
}

func (s *AuditService) List(w http.ResponseWriter, r *http.Request) {
	query := s.db.Order("created_at desc")

	params := r.URL.Query()
	if params.Has("record_id") {
		query = query.Where("record_id = ?", params.Get("record_id"))
	}

	var logs []schema.AuditLog
	result := query.Find(&logs)
	if result.Error != nil {
		err := schema.NewDbError("retrieving audit log entries", result.Error)
		http.Error(w, fmt.Sprintf("error listing audit logs: %v", err), http.StatusBadRequest)
		return
	}

	entries := make([]AuditLogEntry, 0, len(logs))
	for i := range logs {
		entries = append(entries, convertToAuditLogEntry(&logs[i]))
	}

	utils.WriteJsonResponse(w, entries)
}

// recordAudit appends one audit entry inside the caller's transaction. This
// is the server-side equivalent of the database trigger the hosted backend
// used: every mutation path calls it with the acting session.
func recordAudit(txn *gorm.DB, actor auth.Session, tableName, recordId, action string, oldValues, newValues interface{}) error {
	entry := schema.AuditLog{
		Id:        ids.New(),
		TableName: tableName,
		RecordId:  recordId,
		Action:    action,
		UserId:    actor.Principal.Id,
		UserEmail: actor.Principal.Email,
		UserRole:  actor.Profile.Role,
	}

	oldJson, err := marshalAuditValues(oldValues)
	if err != nil {
		return err
	}
	entry.OldValues = oldJson

	newJson, err := marshalAuditValues(newValues)
	if err != nil {
		return err
	}
	entry.NewValues = newJson

	if action == schema.AuditUpdate && oldJson != nil && newJson != nil {
		changed, err := changedFields(*oldJson, *newJson)
		if err != nil {
			return err
		}
		if len(changed) > 0 {
			changedJson, err := json.Marshal(changed)
			if err != nil {
				return fmt.Errorf("error serializing changed fields: %w", err)
			}
			changedStr := string(changedJson)
			entry.ChangedFields = &changedStr
		}
	}

	if result := txn.Create(&entry); result.Error != nil {
		return schema.NewDbError("appending audit log entry", result.Error)
	}

	return nil
}

func marshalAuditValues(values interface{}) (*string, error) {
	if values == nil {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("error serializing audit values: %w", err)
	}
	str := string(data)
	return &str, nil
}

func changedFields(oldJson, newJson string) ([]string, error) {
	var oldMap, newMap map[string]json.RawMessage
	if err := json.Unmarshal([]byte(oldJson), &oldMap); err != nil {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(newJson), &newMap); err != nil {
		return nil, nil
	}

	changed := []string{}
	for key, newValue := range newMap {
		oldValue, ok := oldMap[key]
		if !ok || string(oldValue) != string(newValue) {
			changed = append(changed, key)
		}
	}
	for key := range oldMap {
		if _, ok := newMap[key]; !ok {
			changed = append(changed, key)
		}
	}

	return changed, nil
}
