package services

import (
	"errors"
	"fmt"
	"net/http"
	"quiltplatform/quilt/auth"
	"quiltplatform/quilt/schema"
	"quiltplatform/quilt/tenant"
	"quiltplatform/quilt/utils"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type UserService struct {
	db        *gorm.DB
	userAuth  auth.IdentityProvider
	tenantCfg tenant.Config
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Post("/signup", s.Signup)
		r.Post("/login", s.LoginWithEmail)
		r.Post("/login-with-token", s.LoginWithToken)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.SessionMiddleware(s.db, s.tenantCfg))

		r.Get("/info", s.Info)
	})

	// User management requires auth, privileged tenant membership, and the
	// Admin role.
	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.SessionMiddleware(s.db, s.tenantCfg))
		r.Use(auth.PrivilegedTenantOnly())
		r.Use(auth.AdminOnly())

		r.Get("/list", s.List)
		r.Post("/create", s.CreateUser)
		r.Post("/{user_id}/update", s.UpdateUser)
		r.Delete("/{user_id}", s.DeleteUser)
	})

	return r
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupResponse struct {
	UserId string `json:"user_id"`
}

func (s *UserService) Signup(w http.ResponseWriter, r *http.Request) {
	var params signupRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if !s.userAuth.AllowDirectSignup() {
		http.Error(w, "direct signup is not supported for this identity provider", http.StatusUnauthorized)
		return
	}

	// Self-service signups always start as staff; only an admin can assign
	// another role.
	userId, err := s.userAuth.CreateUser(params.Name, params.Email, params.Password, schema.RoleStaff)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	utils.WriteJsonResponse(w, signupResponse{UserId: userId})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserId      string `json:"user_id"`
	AccessToken string `json:"access_token"`
}

func (s *UserService) LoginWithEmail(w http.ResponseWriter, r *http.Request) {
	var params loginRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	login, err := s.userAuth.LoginWithEmail(params.Email, params.Password)
	if err != nil {
		// Always the same message; login responses must not reveal whether
		// the account exists or why the attempt failed.
		http.Error(w, auth.ErrInvalidCredentials.Error(), http.StatusUnauthorized)
		return
	}

	utils.WriteJsonResponse(w, loginResponse{UserId: login.UserId, AccessToken: login.AccessToken})
}

type loginWithTokenRequest struct {
	AccessToken string `json:"access_token"`
}

func (s *UserService) LoginWithToken(w http.ResponseWriter, r *http.Request) {
	var params loginWithTokenRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	login, err := s.userAuth.LoginWithToken(params.AccessToken)
	if err != nil {
		http.Error(w, auth.ErrInvalidCredentials.Error(), http.StatusUnauthorized)
		return
	}

	utils.WriteJsonResponse(w, loginResponse{UserId: login.UserId, AccessToken: login.AccessToken})
}

type UserInfo struct {
	Id      string  `json:"id"`
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Role    string  `json:"role"`
	Status  string  `json:"status"`
	Company *string `json:"company,omitempty"`
}

func convertToUserInfo(user *schema.User) UserInfo {
	return UserInfo{
		Id:      user.Id,
		Name:    user.Name,
		Email:   user.Email,
		Role:    user.Role,
		Status:  user.Status,
		Company: user.Company,
	}
}

type selfInfoResponse struct {
	UserInfo
	IsPrivilegedTenant bool `json:"is_privileged_tenant"`
}

func (s *UserService) Info(w http.ResponseWriter, r *http.Request) {
	session, err := auth.SessionFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	utils.WriteJsonResponse(w, selfInfoResponse{
		UserInfo:           convertToUserInfo(&session.Profile),
		IsPrivilegedTenant: session.Tenant.IsPrivileged,
	})
}

func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	var users []schema.User
	result := s.db.Order("email asc").Find(&users)
	if result.Error != nil {
		err := schema.NewDbError("retrieving list of users", result.Error)
		http.Error(w, fmt.Sprintf("error listing users: %v", err), http.StatusBadRequest)
		return
	}

	infos := make([]UserInfo, 0, len(users))
	for i := range users {
		infos = append(infos, convertToUserInfo(&users[i]))
	}

	utils.WriteJsonResponse(w, infos)
}

type createUserRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Role     string  `json:"role"`
	Company  *string `json:"company,omitempty"`
}

func (s *UserService) CreateUser(w http.ResponseWriter, r *http.Request) {
	var params createUserRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	session, err := auth.SessionFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	userId, err := s.userAuth.CreateUser(params.Name, params.Email, params.Password, params.Role)
	if err != nil {
		http.Error(w, fmt.Sprintf("error creating user: %v", err), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			return err
		}

		if params.Company != nil {
			user.Company = params.Company
			if result := txn.Save(&user); result.Error != nil {
				return schema.NewDbError("setting company on new user", result.Error)
			}
		}

		return recordAudit(txn, session, "users", user.Id, schema.AuditInsert, nil, convertToUserInfo(&user))
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating user: %v", err), http.StatusBadRequest)
		return
	}

	utils.WriteJsonResponse(w, signupResponse{UserId: userId})
}

type updateUserRequest struct {
	Name    *string `json:"name,omitempty"`
	Role    *string `json:"role,omitempty"`
	Status  *string `json:"status,omitempty"`
	Company *string `json:"company,omitempty"`
}

func (s *UserService) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userId := chi.URLParam(r, "user_id")

	var params updateUserRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	session, err := auth.SessionFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if params.Role != nil {
		if err := schema.CheckValidRole(*params.Role); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if params.Status != nil {
		if err := schema.CheckValidUserStatus(*params.Status); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			return err
		}
		before := convertToUserInfo(&user)

		if params.Name != nil {
			user.Name = *params.Name
		}
		if params.Role != nil {
			user.Role = *params.Role
		}
		if params.Status != nil {
			user.Status = *params.Status
		}
		if params.Company != nil {
			user.Company = params.Company
		}

		if result := txn.Save(&user); result.Error != nil {
			return schema.NewDbError("updating user", result.Error)
		}

		return recordAudit(txn, session, "users", user.Id, schema.AuditUpdate, before, convertToUserInfo(&user))
	})

	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, schema.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("error updating user: %v", err), status)
		return
	}

	utils.WriteSuccess(w)
}

func (s *UserService) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userId := chi.URLParam(r, "user_id")

	session, err := auth.SessionFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	if userId == session.Principal.Id {
		http.Error(w, "cannot delete the currently signed in user", http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			return err
		}
		before := convertToUserInfo(&user)

		// Bookings survive their creator so history stays auditable.
		if result := txn.Delete(&schema.User{Id: userId}); result.Error != nil {
			return schema.NewDbError("deleting user", result.Error)
		}

		return recordAudit(txn, session, "users", userId, schema.AuditDelete, before, nil)
	})

	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, schema.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, fmt.Sprintf("error deleting user %v: %v", userId, err), status)
		return
	}

	if err := s.userAuth.DeleteUser(userId); err != nil {
		http.Error(w, fmt.Sprintf("error deleting user %v: %v", userId, err), http.StatusBadRequest)
		return
	}

	utils.WriteSuccess(w)
}
