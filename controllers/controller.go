package controllers

import (
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"printportal-backend/auth"
	"printportal-backend/middlewares"
	"printportal-backend/services"
	"printportal-backend/uploads"
)

// Handler carries the collaborators every controller needs.
type Handler struct {
	DB         *gorm.DB
	Requests   *services.RequestService
	Tokens     *auth.TokenService
	Passwords  *auth.PasswordChecker
	Auth       *middlewares.Auth
	Storage    uploads.Storage
	Presigner  uploads.Presigner // nil when uploads go through the server
	Gate       *uploads.Gate
	PresignTTL time.Duration
	Logger     *logrus.Entry
}
