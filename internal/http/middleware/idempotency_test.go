package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type lookupCall struct {
	user, scope, key string
}

func idemRouter(t *testing.T, lookup IdempotencyLookup) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-User"); uid != "" {
			c.Set(UserIDKey, uid)
		}
		c.Next()
	})
	r.Use(IdempotencyValidator(IdempotencyOptions{MaxLen: 16}, lookup))
	r.POST("/things", func(c *gin.Context) {
		key, _ := GetIdempotencyKey(c)
		rid, _ := ReplayResource(c)
		c.String(http.StatusOK, key+"|"+rid)
	})
	return r
}

func postThing(r *gin.Engine, user, key string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/things", nil)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyValidator(t *testing.T) {
	var calls []lookupCall
	lookup := func(_ context.Context, user, scope, key string, _ time.Time) (string, bool, error) {
		calls = append(calls, lookupCall{user, scope, key})
		if key == "seen" {
			return "msg-1", true, nil
		}
		if key == "broken" {
			return "", false, errors.New("db down")
		}
		return "", false, nil
	}
	r := idemRouter(t, lookup)

	if w := postThing(r, "u1", ""); w.Body.String() != "|" || len(calls) != 0 {
		t.Fatalf("no header: body=%q calls=%d", w.Body.String(), len(calls))
	}

	if w := postThing(r, "u1", "bad key!"); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid key: status %d", w.Code)
	}
	if w := postThing(r, "u1", strings.Repeat("a", 17)); w.Code != http.StatusBadRequest {
		t.Fatalf("too long key: status %d", w.Code)
	}

	if w := postThing(r, "u1", "fresh"); w.Body.String() != "fresh|" {
		t.Fatalf("fresh key: %q", w.Body.String())
	}
	last := calls[len(calls)-1]
	if last.user != "u1" || last.scope != "POST /things" || last.key != "fresh" {
		t.Fatalf("lookup args = %+v", last)
	}

	w := postThing(r, "u1", "seen")
	if w.Body.String() != "seen|msg-1" {
		t.Fatalf("replay: %q", w.Body.String())
	}

	if w := postThing(r, "u1", "broken"); w.Code != http.StatusOK || w.Body.String() != "broken|" {
		t.Fatalf("lookup errors must not block: %d %q", w.Code, w.Body.String())
	}

	n := len(calls)
	postThing(r, "", "seen")
	if len(calls) != n {
		t.Fatal("anonymous requests must not be looked up")
	}
}

func TestReplayBypassesRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	lookup := func(context.Context, string, string, string, time.Time) (string, bool, error) {
		return "m", true, nil
	}
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(UserIDKey, "u1"); c.Next() })
	r.Use(IdempotencyValidator(IdempotencyOptions{}, lookup))
	r.Use(NewRateLimiter(0.0001, 1, KeyByUserOrIP()).Handler())
	r.POST("/things", func(c *gin.Context) { c.Status(http.StatusCreated) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/things", nil)
		req.Header.Set(HeaderIdempotencyKey, "k")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("replay %d limited: %d", i, w.Code)
		}
	}
}
