package schema

import "fmt"

const (
	RoleAdmin   = "Admin"
	RoleStaff   = "Staff"
	RoleFinance = "Finance"
	RoleCRMUser = "CRMUser"
)

func CheckValidRole(role string) error {
	if role == RoleAdmin || role == RoleStaff || role == RoleFinance || role == RoleCRMUser {
		return nil
	}
	return fmt.Errorf("invalid role '%v'", role)
}

const (
	StatusActive   = "Active"
	StatusInactive = "Inactive"
)

func CheckValidUserStatus(status string) error {
	if status == StatusActive || status == StatusInactive {
		return nil
	}
	return fmt.Errorf("invalid user status '%v', must be 'Active' or 'Inactive'", status)
}

const (
	BookingDraft      = "Draft"
	BookingSubmitted  = "Submitted"
	BookingInProgress = "In Progress"
	BookingCompleted  = "Completed"
	BookingCancelled  = "Cancelled"
)

func CheckValidBookingStatus(status string) error {
	if status == BookingDraft || status == BookingSubmitted || status == BookingInProgress ||
		status == BookingCompleted || status == BookingCancelled {
		return nil
	}
	return fmt.Errorf("invalid booking status '%v'", status)
}

const (
	FieldText     = "text"
	FieldNumber   = "number"
	FieldDate     = "date"
	FieldSelect   = "select"
	FieldCheckbox = "checkbox"
	FieldTextarea = "textarea"
)

func CheckValidFieldType(fieldType string) error {
	switch fieldType {
	case FieldText, FieldNumber, FieldDate, FieldSelect, FieldCheckbox, FieldTextarea:
		return nil
	}
	return fmt.Errorf("invalid field type '%v'", fieldType)
}

const (
	GrimaldiShipping = "GRIMALDI_SHIPPING"
	OrientShipping   = "ORIENT_SHIPPING"
	GeneralShipping  = "GENERAL_SHIPPING"
	Labels           = "LABELS"
	Blc              = "BLC"
	DeliveryPermits  = "DELIVERY_PERMITS"
)

func CheckValidTaskType(taskType string) error {
	switch taskType {
	case GrimaldiShipping, OrientShipping, GeneralShipping, Labels, Blc, DeliveryPermits:
		return nil
	}
	return fmt.Errorf("invalid task type '%v'", taskType)
}

// DocumentTaskTypes are the template types offered by the document generator.
var DocumentTaskTypes = []string{Labels, Blc, DeliveryPermits}

const (
	AuditInsert = "INSERT"
	AuditUpdate = "UPDATE"
	AuditDelete = "DELETE"
)
