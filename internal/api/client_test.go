package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/auth/login", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "student@fpt.edu.vn", body["email"])
		assert.Equal(t, "hunter2", body["password"])

		json.NewEncoder(w).Encode(Session{
			AccessToken: "tok-123",
			User:        Profile{ID: "u1", Email: body["email"], FullName: "Student One", Role: "student"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	session, err := c.Login(context.Background(), "student@fpt.edu.vn", "hunter2")

	require.NoError(t, err)
	assert.Equal(t, "tok-123", session.AccessToken)
	assert.Equal(t, "u1", session.User.ID)
	assert.Equal(t, "student", session.User.Role)
}

func TestLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid credentials"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.Login(context.Background(), "x@y.z", "wrong")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestLoginMissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.Login(context.Background(), "x@y.z", "pw")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no access token")
}

func TestStudentGroup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/students/u1/group", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.Write([]byte(`{"groupId":"g-42"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, func() (string, error) { return "tok-123", nil })
	groupID, err := c.StudentGroup(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, "g-42", groupID)
}

func TestStudentGroupNoEnrollment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"groupId":""}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.StudentGroup(context.Background(), "u1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no active enrollment")
}
