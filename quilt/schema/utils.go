package schema

import (
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

type DbError struct {
	action string
	err    error
}

func NewDbError(action string, err error) error {
	slog.Error("sql error", "action", action, "error", err)
	return DbError{action: action, err: err}
}

func (e DbError) Error() string {
	return fmt.Sprintf("sql error while %v: %v", e.action, e.err)
}

func (e DbError) Unwrap() error {
	return e.err
}

var ErrNotFound = errors.New("record not found")

func GetUser(userId string, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, fmt.Errorf("no user with id %v: %w", userId, ErrNotFound)
		}
		return user, NewDbError("retrieving user by id", result.Error)
	}

	return user, nil
}

func GetUserByEmail(email string, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "email = ?", email)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, fmt.Errorf("no user with email %v: %w", email, ErrNotFound)
		}
		return user, NewDbError("retrieving user by email", result.Error)
	}

	return user, nil
}

func GetTaskTemplate(templateId string, db *gorm.DB, loadFields bool) (TaskTemplate, error) {
	var template TaskTemplate

	var result *gorm.DB = db
	if loadFields {
		// Ascending field_order; equal orders fall back to insertion order.
		result = result.Preload("Fields", func(db *gorm.DB) *gorm.DB {
			return db.Order("field_order asc, created_at asc")
		})
	}
	result = result.First(&template, "id = ?", templateId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return template, fmt.Errorf("no task template with id %v: %w", templateId, ErrNotFound)
		}
		return template, NewDbError("retrieving task template by id", result.Error)
	}

	return template, nil
}

func GetBooking(bookingId string, db *gorm.DB, loadTemplate bool) (Booking, error) {
	var booking Booking

	var result *gorm.DB = db
	if loadTemplate {
		result = result.Preload("TaskTemplate")
	}
	result = result.First(&booking, "id = ?", bookingId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return booking, fmt.Errorf("no booking with id %v: %w", bookingId, ErrNotFound)
		}
		return booking, NewDbError("retrieving booking by id", result.Error)
	}

	return booking, nil
}

func TaskTemplateExists(db *gorm.DB, templateId string) (bool, error) {
	var template TaskTemplate
	result := db.First(&template, "id = ?", templateId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, NewDbError("checking if task template exists", result.Error)
	}
	return true, nil
}
