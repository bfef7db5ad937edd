// Пакет auth — клиентская сессия Admin UI.
// Зашифрованный AES-256-GCM cookie хранит идентификатор клиента и набор
// токенов провайдера, чтобы восстановить Session Store после рестарта.
package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/vixio/admin-module/internal/domain/model"
)

// Имя cookie для зашифрованной сессии UI.
const SessionCookieName = "vixio_admin_session"

// SessionCookieMaxAge — срок жизни cookie в секундах.
const SessionCookieMaxAge = int(24 * time.Hour / time.Second)

// SessionData — данные клиента Admin UI, хранящиеся в зашифрованном cookie.
type SessionData struct {
	// ClientID — идентификатор клиентского экземпляра (браузера).
	ClientID string `json:"client_id"`
	// AccessToken — JWT access token от Keycloak.
	AccessToken string `json:"access_token,omitempty"`
	// RefreshToken — refresh token для обновления access token.
	RefreshToken string `json:"refresh_token,omitempty"`
	// ExpiresAt — время истечения access token (Unix timestamp).
	ExpiresAt int64 `json:"expires_at,omitempty"`
	// UserID — sub пользователя.
	UserID string `json:"user_id,omitempty"`
	// Email — email пользователя.
	Email string `json:"email,omitempty"`
	// FullName — отображаемое имя.
	FullName string `json:"full_name,omitempty"`
}

// NewClientID создаёт идентификатор нового клиентского экземпляра.
func NewClientID() string {
	return uuid.NewString()
}

// NewSessionData строит данные cookie из сессии провайдера.
// sess == nil — cookie без токенов (клиент не аутентифицирован).
func NewSessionData(clientID string, sess *model.Session) *SessionData {
	data := &SessionData{ClientID: clientID}
	if sess == nil {
		return data
	}
	data.AccessToken = sess.AccessToken
	data.RefreshToken = sess.RefreshToken
	data.ExpiresAt = sess.ExpiresAt.Unix()
	if sess.User != nil {
		data.UserID = sess.User.ID
		data.Email = sess.User.Email
		data.FullName = sess.User.FullName
	}
	return data
}

// Session восстанавливает сессию провайдера. Без токенов — nil.
func (s *SessionData) Session() *model.Session {
	if s == nil || s.AccessToken == "" {
		return nil
	}
	sess := &model.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    time.Unix(s.ExpiresAt, 0),
	}
	if s.UserID != "" {
		sess.User = &model.User{ID: s.UserID, Email: s.Email, FullName: s.FullName}
	}
	return sess
}

// SameTokens — cookie содержит те же токены, что и сессия.
func (s *SessionData) SameTokens(sess *model.Session) bool {
	if sess == nil {
		return s.AccessToken == ""
	}
	return s.AccessToken == sess.AccessToken && s.RefreshToken == sess.RefreshToken
}

// cookieVersion — префикс формата зашифрованного значения.
const cookieVersion = "v1."

// SessionManager шифрует SessionData в cookie (AES-256-GCM).
// Имя cookie входит в associated data: значение нельзя переставить в другой cookie.
type SessionManager struct {
	aead   cipher.AEAD
	secure bool
}

// NewSessionManager создаёт SessionManager. Ключ AES выводится из secret
// через HKDF-SHA256. Пустой secret заменяется случайным: cookie перестают
// расшифровываться после рестарта.
func NewSessionManager(secret string, secure bool) (*SessionManager, error) {
	ikm := []byte(secret)
	if secret == "" {
		ikm = make([]byte, 32)
		if _, err := rand.Read(ikm); err != nil {
			return nil, fmt.Errorf("генерация ключа сессии: %w", err)
		}
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, nil, []byte(SessionCookieName)), key); err != nil {
		return nil, fmt.Errorf("вывод ключа сессии: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("AES: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("GCM: %w", err)
	}
	return &SessionManager{aead: aead, secure: secure}, nil
}

// Encrypt сериализует и шифрует data.
func (sm *SessionManager) Encrypt(data *SessionData) (string, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("сериализация сессии: %w", err)
	}

	nonce := make([]byte, sm.aead.NonceSize(), sm.aead.NonceSize()+len(plaintext)+sm.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("генерация nonce: %w", err)
	}
	sealed := sm.aead.Seal(nonce, nonce, plaintext, []byte(SessionCookieName))
	return cookieVersion + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt расшифровывает значение, созданное Encrypt.
func (sm *SessionManager) Decrypt(value string) (*SessionData, error) {
	encoded, ok := strings.CutPrefix(value, cookieVersion)
	if !ok {
		return nil, errors.New("неизвестный формат cookie сессии")
	}
	sealed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("декодирование cookie: %w", err)
	}
	if len(sealed) < sm.aead.NonceSize() {
		return nil, errors.New("cookie сессии слишком короткий")
	}

	nonce, ciphertext := sealed[:sm.aead.NonceSize()], sealed[sm.aead.NonceSize():]
	plaintext, err := sm.aead.Open(nil, nonce, ciphertext, []byte(SessionCookieName))
	if err != nil {
		return nil, fmt.Errorf("расшифровка cookie: %w", err)
	}

	var data SessionData
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("разбор cookie: %w", err)
	}
	return &data, nil
}

// SetSessionCookie записывает data в cookie ответа.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, data *SessionData) error {
	value, err := sm.Encrypt(data)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/admin",
		MaxAge:   SessionCookieMaxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// GetSessionFromRequest читает cookie запроса. Без cookie — nil, nil.
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) (*SessionData, error) {
	c, err := r.Cookie(SessionCookieName)
	if errors.Is(err, http.ErrNoCookie) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sm.Decrypt(c.Value)
}
