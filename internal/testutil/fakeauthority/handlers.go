package fakeauthority

import (
	"encoding/json"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// writeDetail writes an error in the {"detail": ...} form used by the
// authority's authentication layer.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string `json:"token"`
	UserID  int64  `json:"user_id"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	IsAdmin bool   `json:"is_admin"`
}

func (a *Authority) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}

	a.mu.Lock()
	u, ok := a.users[strings.ToLower(req.Email)]
	if !ok || u.Password != req.Password {
		a.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid credentials"})
		return
	}
	token := a.issueLocked(u.ID)
	a.mu.Unlock()

	writeJSON(w, http.StatusOK, loginResponse{
		Token:   token,
		UserID:  u.ID,
		Email:   u.Email,
		Role:    u.Role,
		IsAdmin: u.Role == "admin",
	})
}

func (a *Authority) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	title := strings.ToLower(q.Get("titleSubstring"))
	date := q.Get("date")

	a.mu.Lock()
	records := a.sortedRecordsLocked()
	a.mu.Unlock()

	out := []Summary{}
	for _, rec := range records {
		if status != "" && rec.Status != status {
			continue
		}
		if title != "" && !strings.Contains(strings.ToLower(rec.Title), title) {
			continue
		}
		if date != "" && !strings.HasPrefix(rec.Date, date) {
			continue
		}
		out = append(out, Summary{
			ID:              rec.ID,
			Title:           rec.Title,
			Status:          rec.Status,
			Date:            rec.Date,
			CommitmentCount: len(rec.Commitments),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *Authority) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rec := range a.records {
		if rec.ID == id {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Not found.")
}

func (a *Authority) handleCreateAction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid multipart body")
		return
	}

	commitmentID := r.FormValue("commitmentId")
	description := r.FormValue("description")
	if commitmentID == "" || description == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"description": {"This field is required."}})
		return
	}
	cid, err := strconv.ParseInt(commitmentID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid commitment")
		return
	}

	user := currentUser(r)
	sub := SubmittedAction{CommitmentID: commitmentID, Description: description, AuthorEmail: user.Email}

	var content []byte
	if f, hdr, err := r.FormFile("file"); err == nil {
		content, _ = io.ReadAll(f)
		f.Close()
		sub.FileName = path.Base(hdr.Filename)
		sub.FileType = hdr.Header.Get("Content-Type")
		sub.FileSize = len(content)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextID++
	action := Action{ID: a.nextID, Date: today(), AuthorEmail: user.Email, Description: description}
	if sub.FileName != "" {
		key := "acciones/" + sub.FileName
		a.media[key] = content
		p := "/media/" + key
		action.FilePath = &p
	}

	for i := range a.records {
		for j := range a.records[i].Commitments {
			if a.records[i].Commitments[j].ID == cid {
				c := &a.records[i].Commitments[j]
				c.Actions = append(c.Actions, action)
				a.submitted = append(a.submitted, sub)
				writeJSON(w, http.StatusCreated, action)
				return
			}
		}
	}
	writeJSON(w, http.StatusBadRequest, map[string][]string{"commitmentId": {"Invalid pk - object does not exist."}})
}

func (a *Authority) handleMedia(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")

	a.mu.Lock()
	content, ok := a.media[key]
	a.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}

	switch strings.ToLower(path.Ext(key)) {
	case ".pdf":
		w.Header().Set("Content-Type", "application/pdf")
	case ".jpg", ".jpeg":
		w.Header().Set("Content-Type", "image/jpeg")
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}
