package tests

import (
	"quiltplatform/quilt/config"
	"quiltplatform/quilt/schema"
	"quiltplatform/quilt/services"
	"quiltplatform/quilt/tenant"
	"testing"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	api chi.Router
	db  *gorm.DB
}

const (
	adminName     = "admin123"
	adminEmail    = "admin123@mky.com"
	adminPassword = "admin_password123"
)

func setupTestEnv(t *testing.T) testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	err = db.AutoMigrate(
		&schema.User{}, &schema.TaskTemplate{}, &schema.FieldDefinition{},
		&schema.Booking{}, &schema.AuditLog{},
	)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Config{
		IdentityProvider: "basic",
		Tenant:           tenant.DefaultConfig(),
	}

	quilt, err := services.NewQuilt(db, cfg)
	if err != nil {
		t.Fatal(err)
	}

	quilt.InitAdmin(config.AdminBootstrap{
		Name: adminName, Email: adminEmail, Password: adminPassword,
	}, cfg.Tenant)

	return testEnv{api: quilt.Routes(), db: db}
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

// newUser signs up and logs in a staff user inside the privileged tenant
// domain.
func (t *testEnv) newUser(name string) (client, error) {
	c := t.newClient()
	login, err := c.signup(name, name+"@mky.com", name+"_password")
	if err != nil {
		return client{}, err
	}

	err = c.login(login)
	if err != nil {
		return client{}, err
	}

	return c, nil
}

// newOutsideUser signs up and logs in a user outside the privileged tenant.
func (t *testEnv) newOutsideUser(name string) (client, error) {
	c := t.newClient()
	login, err := c.signup(name, name+"@othercorp.com", name+"_password")
	if err != nil {
		return client{}, err
	}

	err = c.login(login)
	if err != nil {
		return client{}, err
	}

	return c, nil
}

func (t *testEnv) adminClient() (client, error) {
	c := t.newClient()
	err := c.login(loginInfo{Email: adminEmail, Password: adminPassword})
	return c, err
}

// createTemplate makes an active template with the given fields through the
// admin endpoints.
func (t *testEnv) createTemplate(admin *client, name, taskType string, fields []fieldSpec) (string, error) {
	templateId, err := admin.createTemplate(name, taskType)
	if err != nil {
		return "", err
	}

	for _, field := range fields {
		if _, err := admin.createField(templateId, field); err != nil {
			return "", err
		}
	}

	return templateId, nil
}
