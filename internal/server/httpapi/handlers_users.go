package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/taskmanager/internal/common"
	"github.com/dmitrijs2005/taskmanager/internal/server/models"
	"github.com/dmitrijs2005/taskmanager/internal/server/services"
	"github.com/dmitrijs2005/taskmanager/internal/server/storage"
)

const (
	maxJSONBody      = 1 << 20
	maxMultipartBody = storage.MaxAvatarSize + 1<<20
	avatarField      = "avatar"
)

type userView struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Avatar   *string `json:"avatar"`
}

func newUserView(u *models.User) userView {
	return userView{ID: u.ID, Username: u.Username, Email: u.Email, Avatar: u.Avatar}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string   `json:"token"`
	User  userView `json:"user"`
}

func (s *HTTPServer) register(w http.ResponseWriter, r *http.Request) {
	var in services.RegisterInput

	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
		if err := r.ParseMultipartForm(maxMultipartBody); err != nil {
			s.writeError(w, r, bodyError(err))
			return
		}
		defer r.MultipartForm.RemoveAll()

		in.Username = r.FormValue("username")
		in.Email = r.FormValue("email")
		in.Password = r.FormValue("password")

		upload, closeFn, err := formUpload(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		defer closeFn()
		in.Avatar = upload
	} else {
		var body struct {
			Username string `json:"username"`
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			s.writeError(w, r, err)
			return
		}
		in.Username, in.Email, in.Password = body.Username, body.Email, body.Password
	}

	user, err := s.users.Register(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "Registered", "user_id", user.ID)
	writeJSON(w, http.StatusOK, newUserView(user), "User created successfully")
}

func (s *HTTPServer) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	session, err := s.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: session.Token, User: newUserView(session.User)}, "Login successful")
}

func (s *HTTPServer) me(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.Me(r.Context(), claimsFrom(r.Context()).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(user), "")
}

func (s *HTTPServer) updateAvatar(w http.ResponseWriter, r *http.Request) {
	if !isMultipart(r) {
		s.writeError(w, r, common.ErrorNoAvatarProvided)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	if err := r.ParseMultipartForm(maxMultipartBody); err != nil {
		s.writeError(w, r, bodyError(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	upload, closeFn, err := formUpload(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer closeFn()

	url, err := s.users.UpdateAvatar(r.Context(), claimsFrom(r.Context()).UserID, upload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"avatar": url}, "Avatar updated successfully")
}

func (s *HTTPServer) health(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			s.logger.Error(r.Context(), "health check failed", "error", err)
			writeErrorJSON(w, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "")
}

// formUpload returns the avatar part of a parsed multipart form, or nil when absent.
func formUpload(r *http.Request) (*services.Upload, func(), error) {
	file, header, err := r.FormFile(avatarField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, func() {}, nil
		}
		return nil, nil, fmt.Errorf("%w: unreadable avatar", common.ErrorValidation)
	}
	return &services.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Content:     file,
	}, func() { file.Close() }, nil
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body", common.ErrorValidation)
	}
	return nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		return common.ErrorFileTooLarge
	}
	return fmt.Errorf("%w: malformed multipart body", common.ErrorValidation)
}
