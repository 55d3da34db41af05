package schema

import "time"

type User struct {
	Id string `gorm:"primaryKey"`

	Name  string
	Email string `gorm:"uniqueIndex"`

	// Password is empty when an external identity provider owns credentials.
	Password []byte

	Role    string
	Status  string
	Company *string

	CreatedAt time.Time
	UpdatedAt time.Time

	Bookings []Booking `gorm:"foreignKey:UserId"`
}

type TaskTemplate struct {
	Id string `gorm:"primaryKey"`

	Name string
	Type string

	Description *string

	// Templates are never hard-deleted, only deactivated.
	IsActive bool

	CreatedAt time.Time
	UpdatedAt time.Time

	Fields []FieldDefinition `gorm:"foreignKey:TaskTemplateId;constraint:OnDelete:CASCADE;"`
}

type FieldDefinition struct {
	Id string `gorm:"primaryKey"`

	TaskTemplateId string        `gorm:"uniqueIndex:idx_template_field_name"`
	TaskTemplate   *TaskTemplate `gorm:"foreignKey:TaskTemplateId"`

	FieldName  string `gorm:"uniqueIndex:idx_template_field_name"`
	FieldLabel string
	FieldType  string
	IsRequired bool

	// Json encoded list of choices, only meaningful for select fields.
	FieldOptions string

	FieldOrder int

	CreatedAt time.Time
}

type Booking struct {
	Id string `gorm:"primaryKey"`

	UserId string
	User   *User

	TaskTemplateId string
	TaskTemplate   *TaskTemplate

	// Json encoded key/value bag holding the standard shipping fields plus
	// every field declared by the booking's template.
	BookingData string

	Status string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type AuditLog struct {
	Id string `gorm:"primaryKey"`

	TableName string
	RecordId  string
	Action    string

	OldValues *string
	NewValues *string

	// Json encoded list of field names, set for updates.
	ChangedFields *string

	UserId    string
	UserEmail string
	UserRole  string

	CreatedAt time.Time
}
