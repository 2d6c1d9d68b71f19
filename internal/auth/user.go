package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	stdtime "time"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/kuitang/notesmith/internal/db"
	"github.com/kuitang/notesmith/internal/email"
	"github.com/kuitang/notesmith/internal/errs"
	"github.com/kuitang/notesmith/internal/obs"
	"github.com/kuitang/notesmith/internal/urlutil"
)

// Errors
var (
	ErrInvalidCredentials = errs.New(errs.Unauthenticated, "Invalid email or password")
	ErrAccountExists      = errs.New(errs.AlreadyExists, "An account with this email already exists")
	ErrWeakPassword       = errs.New(errs.InvalidArgument, "password must be at least 8 characters")
	ErrInvalidEmail       = errs.New(errs.InvalidArgument, "a valid email address is required")
	ErrInvalidToken       = errs.New(errs.InvalidArgument, "invalid or expired token")
	ErrUserNotFound       = errs.New(errs.NotFound, "User not found")
)

// Argon2id parameters (OWASP second recommendation: m=19456, t=2, p=1).
// Parameters are embedded in each hash string, so hashes made with other
// parameters still verify.
const (
	argon2Time    = 2
	argon2Memory  = 19 * 1024
	argon2Threads = 1
	argon2KeyLen  = 32
	argon2SaltLen = 16
)

// Token expiry
const (
	VerifyTokenExpiry = 24 * stdtime.Hour
	MinPasswordLength = 8
)

// Clock abstracts time for testability.
type Clock interface {
	Now() stdtime.Time
}

// realClock implements Clock using the real system stdtime.
type realClock struct{}

func (realClock) Now() stdtime.Time { return stdtime.Now() }

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	VerifyPassword(password, encodedHash string) bool
}

// Argon2Hasher is the production PasswordHasher.
type Argon2Hasher struct{}

func (Argon2Hasher) HashPassword(password string) (string, error) { return HashPassword(password) }

func (Argon2Hasher) VerifyPassword(password, encodedHash string) bool {
	return VerifyPassword(password, encodedHash)
}

// User represents a user account as returned to clients.
type User struct {
	ID            string       `json:"id"`
	Email         string       `json:"email"`
	Name          string       `json:"name"`
	EmailVerified bool         `json:"emailVerified"`
	CreatedAt     stdtime.Time `json:"createdAt"`
}

func userFromRow(row db.User) *User {
	return &User{
		ID:            row.ID,
		Email:         row.Email,
		Name:          row.Name,
		EmailVerified: row.EmailVerified,
		CreatedAt:     row.CreatedAt,
	}
}

// UserStore persists users and verification tokens. *db.DB implements it.
type UserStore interface {
	CreateUser(ctx context.Context, u db.User) error
	GetUser(ctx context.Context, id string) (db.User, error)
	GetUserByEmail(ctx context.Context, email string) (db.User, error)
	MarkEmailVerified(ctx context.Context, userID string, now stdtime.Time) error
	CreateEmailToken(ctx context.Context, t db.EmailToken) error
	ConsumeEmailToken(ctx context.Context, tokenHash string, now stdtime.Time) (string, error)
}

// UserService handles user management operations.
type UserService struct {
	store        UserStore
	emailService email.EmailService
	hasher       PasswordHasher
	baseURL      string // Base URL for verification links
	clock        Clock
}

// NewUserService creates a new user service.
func NewUserService(store UserStore, emailSvc email.EmailService, baseURL string) *UserService {
	return &UserService{
		store:        store,
		emailService: emailSvc,
		hasher:       Argon2Hasher{},
		baseURL:      strings.TrimRight(baseURL, "/"),
		clock:        realClock{},
	}
}

// SetClock replaces the clock used by the service. Intended for testing.
func (s *UserService) SetClock(c Clock) {
	s.clock = c
}

// SetHasher replaces the password hasher. Intended for testing.
func (s *UserService) SetHasher(h PasswordHasher) {
	s.hasher = h
}

// Register creates a new account with email/password and sends a
// verification email. A failed email send does not fail registration.
func (s *UserService) Register(ctx context.Context, emailAddr, password, name string) (*User, error) {
	emailAddr, err := NormalizeEmail(emailAddr)
	if err != nil {
		return nil, err
	}
	if err := ValidatePasswordStrength(password); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.HashPassword(password)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "Failed to create account", fmt.Errorf("hash password: %w", err))
	}

	now := s.clock.Now()
	row := db.User{
		ID:           GenerateUserID(emailAddr),
		Email:        emailAddr,
		Name:         strings.TrimSpace(name),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, row); err != nil {
		if errors.Is(err, db.ErrEmailTaken) {
			return nil, ErrAccountExists
		}
		return nil, errs.Wrap(errs.Internal, "Failed to create account", err)
	}

	if err := s.SendVerification(ctx, row.ID); err != nil {
		obs.From(ctx).Warn("verification_email_failed", "user_id", row.ID, "error", err)
	}
	return userFromRow(row), nil
}

// VerifyLogin verifies email/password credentials for an existing account.
// Returns ErrInvalidCredentials if user doesn't exist or password is wrong.
func (s *UserService) VerifyLogin(ctx context.Context, emailAddr, password string) (*User, error) {
	row, err := s.store.GetUserByEmail(ctx, emailAddr)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "Failed to sign in", err)
	}
	if row.PasswordHash == "" || !s.hasher.VerifyPassword(password, row.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return userFromRow(row), nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, userID string) (*User, error) {
	row, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "Failed to fetch user", err)
	}
	return userFromRow(row), nil
}

// SendVerification issues a fresh single-use token and emails its link.
func (s *UserService) SendVerification(ctx context.Context, userID string) error {
	row, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	token, err := generateSecureToken(32)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	now := s.clock.Now()
	err = s.store.CreateEmailToken(ctx, db.EmailToken{
		TokenHash: hashToken(token),
		UserID:    row.ID,
		ExpiresAt: now.Add(VerifyTokenExpiry),
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}

	link := urlutil.WithQuery(s.baseURL, "/auth/verify-email", url.Values{"token": {token}})
	err = s.emailService.Send(row.Email, email.TemplateVerifyEmail, email.VerifyEmailData{
		Name:      row.Name,
		Link:      link,
		ExpiresIn: "24 hours",
	})
	if err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

// ResendVerification mails a new verification link to a user whose email
// is not verified yet. Earlier links stay valid until they expire.
func (s *UserService) ResendVerification(ctx context.Context, userID string) error {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return errs.New(errs.InvalidArgument, "email is already verified")
	}
	if err := s.SendVerification(ctx, user.ID); err != nil {
		return errs.Wrap(errs.Upstream, "Failed to send verification email", err)
	}
	return nil
}

// VerifyEmail consumes a verification token and marks the owner's email
// as verified.
func (s *UserService) VerifyEmail(ctx context.Context, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}
	now := s.clock.Now()
	userID, err := s.store.ConsumeEmailToken(ctx, hashToken(token), now)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "Failed to verify email", err)
	}
	if err := s.store.MarkEmailVerified(ctx, userID, now); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, errs.Wrap(errs.Internal, "Failed to verify email", err)
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.emailService.Send(user.Email, email.TemplateWelcome, email.WelcomeData{Name: user.Name}); err != nil {
		obs.From(ctx).Warn("welcome_email_failed", "user_id", user.ID, "error", err)
	}
	return user, nil
}

// NormalizeEmail validates an address and returns it trimmed and lower-cased.
func NormalizeEmail(emailAddr string) (string, error) {
	trimmed := strings.TrimSpace(emailAddr)
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

// ValidatePasswordStrength checks if a password meets minimum requirements.
func ValidatePasswordStrength(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// argon2Params are the cost settings stored in every encoded hash.
type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
}

var defaultArgon2 = argon2Params{memory: argon2Memory, time: argon2Time, threads: argon2Threads}

// HashPassword returns a PHC-style Argon2id hash:
// $argon2id$v=19$m=19456,t=2,p=1$<salt>$<key>.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	p := defaultArgon2
	key := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, argon2KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s", argon2.Version, p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt), base64.RawStdEncoding.EncodeToString(key)), nil
}

func decodeArgon2(encoded string) (p argon2Params, salt, key []byte, ok bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" || parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return p, nil, nil, false
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, false
	}
	// argon2.IDKey panics on zero time or parallelism.
	if p.memory == 0 || p.time == 0 || p.threads == 0 {
		return p, nil, nil, false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, false
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > argon2KeyLen*2 {
		return p, nil, nil, false
	}
	return p, salt, key, true
}

// VerifyPassword reports whether password matches an encoded hash. The
// cost settings come from the hash, so older parameters keep verifying.
func VerifyPassword(password, encodedHash string) bool {
	p, salt, key, ok := decodeArgon2(encodedHash)
	if !ok {
		return false
	}
	computed := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, computed) == 1
}

// GenerateUserID derives a stable user id from a normalized email address.
func GenerateUserID(normalizedEmail string) string {
	return "user-" + uuid.NewSHA1(uuid.NameSpaceDNS, []byte(normalizedEmail)).String()
}

func generateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return base64.URLEncoding.EncodeToString(hash[:])
}
