package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"quiltplatform/quilt/schema"
	"strings"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func postgresDsn(uri string) string {
	if uri == "" {
		log.Fatalf("Missing --db_uri arg")
	}
	parts, err := url.Parse(uri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

// seedTemplates creates one template per supported task type so a fresh
// deployment has a working booking form and document generator out of the
// box. Existing templates are never touched.
func seedTemplates(txn *gorm.DB) error {
	templates := []schema.TaskTemplate{
		{Name: "Grimaldi Shipping", Type: schema.GrimaldiShipping},
		{Name: "Orient Shipping", Type: schema.OrientShipping},
		{Name: "General Shipping", Type: schema.GeneralShipping},
		{Name: "Labels", Type: schema.Labels},
		{Name: "BLC", Type: schema.Blc},
		{Name: "Delivery Permits", Type: schema.DeliveryPermits},
	}

	for _, template := range templates {
		var existing schema.TaskTemplate
		result := txn.Find(&existing, "type = ?", template.Type)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 0 {
			continue
		}

		template.Id = uuid.New().String()
		template.IsActive = true
		if result := txn.Create(&template); result.Error != nil {
			return result.Error
		}
	}

	return nil
}

func main() {
	dbUri := flag.String("db_uri", "", "Database URI")
	flag.Parse()

	db, err := gorm.Open(postgres.Open(postgresDsn(*dbUri)), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	migration := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			// Placeholder representing the schema state before versioned
			// migrations were introduced.
			ID:      "0",
			Migrate: func(*gorm.DB) error { return nil },
		},
		{
			ID:      "1",
			Migrate: seedTemplates,
			// No rollback: deleting seeded templates would strand bookings
			// created against them.
		},
	})

	migration.InitSchema(func(txn *gorm.DB) error {
		log.Println("clean database detected, running full schema initialization")

		return txn.AutoMigrate(
			&schema.User{}, &schema.TaskTemplate{}, &schema.FieldDefinition{},
			&schema.Booking{}, &schema.AuditLog{},
		)
	})

	if err := migration.Migrate(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	log.Println("migration completed successfully")
}
