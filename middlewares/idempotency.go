package middlewares

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"printportal-backend/models"
)

// Idempotency processes Idempotency-Key for mutating HTTP methods.
// The first completed response is replayed for the same key and body;
// keys are scoped per client.
func Idempotency(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		method := strings.ToUpper(c.Method())
		if method != fiber.MethodPost && method != fiber.MethodPut && method != fiber.MethodPatch && method != fiber.MethodDelete {
			return c.Next()
		}

		key := strings.TrimSpace(c.Get("Idempotency-Key"))
		if key == "" {
			return c.Next()
		}
		if len(key) > 128 {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key too long")
		}

		scope := ClientID(c)
		path := c.OriginalURL() // includes query string
		body, err := hashableBody(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		reqHash := requestHash(method, path, body, scope)
		match := &models.IdempotencyKey{Key: key, Scope: scope}

		// ---- Phase 1: read or create the pending record under a short TX
		var existing models.IdempotencyKey
		replayed := false
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where(match).First(&existing).Error; err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return fiber.NewError(fiber.StatusInternalServerError, "idempotency lookup failed")
				}
				rec := models.IdempotencyKey{
					Key:         key,
					Scope:       scope,
					RequestHash: reqHash,
					Method:      method,
					Path:        path,
				}
				if e2 := tx.Create(&rec).Error; e2 != nil {
					// Could be unique race: read again
					if e3 := tx.Where(match).First(&existing).Error; e3 != nil {
						return fiber.NewError(fiber.StatusInternalServerError, "idempotency create failed")
					}
				} else {
					return nil
				}
			}

			if existing.RequestHash != reqHash {
				return fiber.NewError(fiber.StatusConflict, "Idempotency-Key reuse with different request")
			}
			if existing.ResponseStatus == 0 {
				return fiber.NewError(fiber.StatusConflict, "A request with this Idempotency-Key is still in progress")
			}
			replayed = true
			return nil
		})
		if err != nil {
			return err
		}
		if replayed {
			c.Set("Idempotent-Replayed", "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
			return c.Status(existing.ResponseStatus).Send(existing.ResponseBody)
		}

		// Run the handler once. Failures release the key so the client may retry.
		if err := c.Next(); err != nil {
			db.Where(match).Delete(&models.IdempotencyKey{})
			return err
		}

		// ---- Phase 2: store the response (best-effort)
		now := time.Now().UTC()
		resp := c.Response().Body()
		blob := make([]byte, len(resp))
		copy(blob, resp)
		db.Model(&models.IdempotencyKey{}).
			Where(match).
			Updates(map[string]any{
				"response_status": c.Response().StatusCode(),
				"response_body":   blob,
				"completed_at":    &now,
			})
		return nil
	}
}

// hashableBody returns the bytes that identify a request body. Multipart
// bodies are re-serialized by fasthttp from a parsed map, so their field order
// is not stable; they are reduced to sorted values plus each file's name,
// size and content digest instead.
func hashableBody(c *fiber.Ctx) ([]byte, error) {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return c.Body(), nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for _, k := range sortedKeys(form.Value) {
		for _, v := range form.Value[k] {
			fmt.Fprintf(&buf, "v:%q=%q\n", k, v)
		}
	}
	for _, k := range sortedKeys(form.File) {
		for _, fh := range form.File[k] {
			digest, err := fileDigest(fh)
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(&buf, "f:%q=%q:%d:%s\n", k, fh.Filename, fh.Size, digest)
		}
	}
	return buf.Bytes(), nil
}

func fileDigest(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// requestHash is sha256(method|path|body|scope).
func requestHash(method, path string, body []byte, scope string) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(path))
	h.Write([]byte{'\n'})
	h.Write(body)
	h.Write([]byte{'\n'})
	h.Write([]byte(scope))
	return hex.EncodeToString(h.Sum(nil))
}
