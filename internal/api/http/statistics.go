package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	authmw "github.com/mind-engage/coursestats/internal/auth/middleware"
	"github.com/mind-engage/coursestats/internal/engine"
	"github.com/mind-engage/coursestats/internal/stats"
	"github.com/mind-engage/coursestats/internal/survey"
	syncx "github.com/mind-engage/coursestats/internal/sync"
)

var validate = validator.New()

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

type listQuery struct {
	Year   int    `validate:"omitempty,gte=1900,lte=9999"`
	Round  int    `validate:"omitempty,gte=1"`
	Course string `validate:"omitempty,max=200"`
}

type generateRequest struct {
	Year   int    `json:"year" validate:"required,gte=1900,lte=9999"`
	Round  int    `json:"round" validate:"omitempty,gte=1"`
	Course string `json:"course_name" validate:"omitempty,max=200"`
}

// GET /statistics?year=&round=&course=
func ListStatisticsHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		lq := listQuery{Course: strings.TrimSpace(q.Get("course"))}
		var err error
		if lq.Year, err = atoiOpt(q.Get("year")); err != nil {
			http.Error(w, "bad year", http.StatusBadRequest)
			return
		}
		if lq.Round, err = atoiOpt(q.Get("round")); err != nil {
			http.Error(w, "bad round", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(lq); err != nil {
			writeError(w, err)
			return
		}
		out, err := eng.List(r.Context(), stats.Filter{Year: lq.Year, Round: lq.Round, CourseName: lq.Course})
		if err != nil {
			writeError(w, err)
			return
		}
		if out == nil {
			out = []stats.CourseStatistic{}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// GET /statistics/{year}/{round}/{course}
func GetStatisticHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		k, ok := keyFromPath(w, r)
		if !ok {
			return
		}
		st, err := eng.Get(r.Context(), k)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// PUT /statistics  { "year": 2024, "round": 3, "course_name": "...", ... }
func SaveStatisticHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec map[string]any
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
		dec.UseNumber()
		if err := dec.Decode(&rec); err != nil {
			badBody(w, err)
			return
		}
		c, err := eng.SaveManual(r.Context(), authmw.CallerFromContext(r.Context()), rec)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// POST /statistics/import  multipart file=<csv|xlsx>, or a raw body with ?filename=
func ImportStatisticsHandler(eng *engine.Engine, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

		var (
			filename string
			data     []byte
			err      error
		)
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, h, ferr := r.FormFile("file")
			if ferr != nil {
				http.Error(w, "file required", http.StatusBadRequest)
				return
			}
			defer f.Close()
			filename = h.Filename
			data, err = io.ReadAll(f)
		} else {
			filename = r.URL.Query().Get("filename")
			if filename == "" {
				filename = "upload.csv"
			}
			data, err = io.ReadAll(r.Body)
		}
		if err != nil {
			if tooLarge(err) {
				http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "read upload", http.StatusBadRequest)
			return
		}
		if len(data) == 0 {
			http.Error(w, "empty file", http.StatusBadRequest)
			return
		}

		res, err := eng.Import(r.Context(), authmw.CallerFromContext(r.Context()), filename, data)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// POST /statistics/generate  { "year": 2024, "round": 3, "course_name": "..." }
func GenerateStatisticsHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
			badBody(w, err)
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, err)
			return
		}
		res, err := eng.Generate(r.Context(), authmw.CallerFromContext(r.Context()), survey.Filter{
			Year: req.Year, Round: req.Round, CourseName: strings.TrimSpace(req.Course),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// GET /statistics/{year}/{round}/{course}/history?limit=
func StatisticHistoryHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		k, ok := keyFromPath(w, r)
		if !ok {
			return
		}
		limit, err := atoiOpt(r.URL.Query().Get("limit"))
		if err != nil || limit < 0 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		evs, err := eng.History(r.Context(), k, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		if evs == nil {
			evs = []syncx.Event{}
		}
		writeJSON(w, http.StatusOK, evs)
	}
}

// DELETE /statistics/{year}/{round}/{course}
func DeleteStatisticHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		k, ok := keyFromPath(w, r)
		if !ok {
			return
		}
		if err := eng.Delete(r.Context(), authmw.CallerFromContext(r.Context()), k); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func keyFromPath(w http.ResponseWriter, r *http.Request) (stats.Key, bool) {
	year, err1 := strconv.Atoi(chi.URLParam(r, "year"))
	round, err2 := strconv.Atoi(chi.URLParam(r, "round"))
	course := chi.URLParam(r, "course")
	if v, err := url.PathUnescape(course); err == nil {
		course = v
	}
	course = strings.TrimSpace(course)
	if err1 != nil || err2 != nil || course == "" {
		http.Error(w, "bad key", http.StatusBadRequest)
		return stats.Key{}, false
	}
	return stats.Key{Year: year, Round: round, CourseName: course}, true
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func badBody(w http.ResponseWriter, err error) {
	if tooLarge(err) {
		http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, "bad json", http.StatusBadRequest)
}

func atoiOpt(s string) (int, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return strconv.Atoi(strings.TrimSpace(s))
}
