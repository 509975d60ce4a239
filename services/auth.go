package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	apperr "github.com/phillip/hela-fund-go/apperr"
	models "github.com/phillip/hela-fund-go/models"
	store "github.com/phillip/hela-fund-go/store"
)

const (
	MinPasswordLen = 6

	// RoleMismatchMessage is returned when a supporter account tries to sign
	// in as a requester.
	RoleMismatchMessage = "This account is registered as a supporter. Please log in as a supporter."
)

// Identity is the acting party stamped on every mutating call.
type Identity struct {
	UserID primitive.ObjectID
	Role   models.Role
}

type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// CanAccess is the role access rule: a requester account may act as either
// role, a supporter account only as a supporter.
func CanAccess(userRole, requestedRole models.Role) bool {
	switch userRole {
	case models.RoleRequester:
		return requestedRole.Valid()
	case models.RoleSupporter:
		return requestedRole == models.RoleSupporter
	}
	return false
}

type AuthService struct {
	store  store.Store
	secret []byte
	expiry time.Duration
	log    *zap.Logger
	now    func() time.Time
}

type AuthOption func(*AuthService)

func WithAuthLogger(l *zap.Logger) AuthOption { return func(a *AuthService) { a.log = l } }

func WithAuthClock(now func() time.Time) AuthOption { return func(a *AuthService) { a.now = now } }

func NewAuthService(st store.Store, secret string, expiry time.Duration, opts ...AuthOption) *AuthService {
	a := &AuthService{
		store:  st,
		secret: []byte(secret),
		expiry: expiry,
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type RegisterInput struct {
	Email      string
	Password   string
	Role       models.Role
	FullName   string
	University string
	Faculty    string
	StudentID  string
	Mobile     string
	Name       string
	Avatar     string
}

func (in RegisterInput) validate() error {
	if _, err := mail.ParseAddress(in.Email); err != nil || strings.ContainsAny(in.Email, "<> ") {
		return apperr.Validation("a valid email is required")
	}
	if len(in.Password) < MinPasswordLen {
		return apperr.Validation("password must be at least %d characters", MinPasswordLen)
	}
	switch in.Role {
	case models.RoleRequester:
		missing := []string{}
		for _, f := range []struct{ name, value string }{
			{"full_name", in.FullName},
			{"university", in.University},
			{"faculty", in.Faculty},
			{"student_id", in.StudentID},
			{"mobile", in.Mobile},
		} {
			if strings.TrimSpace(f.value) == "" {
				missing = append(missing, f.name)
			}
		}
		if len(missing) > 0 {
			return apperr.Validation("missing required fields: %s", strings.Join(missing, ", "))
		}
	case models.RoleSupporter:
		if strings.TrimSpace(in.Name) == "" {
			return apperr.Validation("name is required")
		}
	default:
		return apperr.Validation("role must be requester or supporter")
	}
	return nil
}

func (a *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := in.validate(); err != nil {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	now := a.now()
	u := &models.User{
		ID:           primitive.NewObjectID(),
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
		Avatar:       strings.TrimSpace(in.Avatar),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.Role == models.RoleRequester {
		u.FullName = strings.TrimSpace(in.FullName)
		u.University = strings.TrimSpace(in.University)
		u.Faculty = strings.TrimSpace(in.Faculty)
		u.StudentID = strings.TrimSpace(in.StudentID)
		u.Mobile = strings.TrimSpace(in.Mobile)
	} else {
		u.Name = strings.TrimSpace(in.Name)
	}

	if err := a.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, "", apperr.Validation("email already registered")
		}
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	token, err := a.IssueToken(u.ID, u.Role)
	if err != nil {
		return nil, "", err
	}
	a.log.Info("user registered", zap.String("user_id", u.ID.Hex()), zap.String("role", string(u.Role)))
	return u, token, nil
}

// Login checks credentials and the role access rule. The issued token carries
// the role the user asked to act as.
func (a *AuthService) Login(ctx context.Context, email, password string, role models.Role) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, "", apperr.Validation("email and password are required")
	}
	if !role.Valid() {
		return nil, "", apperr.Validation("role must be requester or supporter")
	}

	u, err := a.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", apperr.Authentication("invalid email or password")
	}
	if err != nil {
		return nil, "", fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", apperr.Authentication("invalid email or password")
	}
	if !CanAccess(u.Role, role) {
		return nil, "", apperr.Authorization(RoleMismatchMessage)
	}

	token, err := a.IssueToken(u.ID, role)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

func (a *AuthService) IssueToken(userID primitive.ObjectID, role models.Role) (string, error) {
	now := a.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Authenticate verifies a bearer token and returns who is calling.
func (a *AuthService) Authenticate(token string) (Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, apperr.Authentication("invalid or expired token")
	}

	id, err := primitive.ObjectIDFromHex(claims.Subject)
	if err != nil || !claims.Role.Valid() {
		return Identity{}, apperr.Authentication("invalid token claims")
	}
	return Identity{UserID: id, Role: claims.Role}, nil
}

func (a *AuthService) Me(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	u, err := a.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

// PublicProfile returns the profile of userID as seen by viewerID. Contact
// details stay private to their owner.
func (a *AuthService) PublicProfile(ctx context.Context, userID, viewerID primitive.ObjectID) (*models.User, error) {
	u, err := a.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	if viewerID != u.ID {
		u.Email = ""
		u.Mobile = ""
		u.StudentID = ""
	}
	return u, nil
}
